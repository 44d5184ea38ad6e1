// internal/rules/evaluate.go
package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Condition tree evaluation.
 *
 * Walks an all/any/leaf tree depth-first, left to right, with no state kept
 * between calls.
 *
 * Evaluation flow:
 *   1. ALL: first false child returns false; true only if every child is true
 *   2. ANY: first true child returns true; false only if every child is false
 *   3. Leaf: resolve variable -> coerce to declared kind -> (resolve operand
 *      variable) -> look up operator -> apply
 *
 * Accessors are called only at leaves and only when reached, so a spy
 * behind a false ALL child is never invoked.
 *
 * Absence handling: an accessor error wrapping ErrDataUnavailable makes its
 * leaf false. Every other error (undefined variable, unknown operator,
 * coercion failure, accessor failure) aborts the whole evaluation.
 */

// EvaluateConditions reports whether cond holds for vars.
func EvaluateConditions(ctx context.Context, cond types.Condition, vars VariableProvider) (bool, error) {
	switch cond.Combinator {
	case types.CombinatorAll:
		if len(cond.Children) == 0 {
			return false, fmt.Errorf("%w: \"all\" requires at least one condition", types.ErrInvalidRuleDefinition)
		}
		for _, child := range cond.Children {
			ok, err := EvaluateConditions(ctx, child, vars)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case types.CombinatorAny:
		if len(cond.Children) == 0 {
			return false, fmt.Errorf("%w: \"any\" requires at least one condition", types.ErrInvalidRuleDefinition)
		}
		for _, child := range cond.Children {
			ok, err := EvaluateConditions(ctx, child, vars)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	default:
		if len(cond.Children) > 0 {
			return false, fmt.Errorf("%w: leaf condition %q has children", types.ErrInvalidRuleDefinition, cond.Variable)
		}
		return evaluateLeaf(ctx, cond, vars)
	}
}

// evaluateLeaf resolves the variable and operand and applies the operator.
func evaluateLeaf(ctx context.Context, cond types.Condition, vars VariableProvider) (bool, error) {
	value, err := resolveVariable(ctx, vars, cond.Variable)
	if err != nil {
		if errors.Is(err, types.ErrDataUnavailable) {
			return false, nil
		}
		return false, err
	}

	operand := cond.Value
	if cond.ValueIsVariable {
		name, ok := cond.Value.(string)
		if !ok {
			return false, fmt.Errorf("%w: value of %q must name a variable", types.ErrInvalidRuleDefinition, cond.Variable)
		}
		ref, err := resolveVariable(ctx, vars, name)
		if err != nil {
			if errors.Is(err, types.ErrDataUnavailable) {
				return false, nil
			}
			return false, err
		}
		operand = ref.Raw()
	}

	op, err := LookupOperator(value.Kind(), cond.Operator)
	if err != nil {
		return false, fmt.Errorf("variable %q: %w", cond.Variable, err)
	}
	ok, err := op.Apply(value, operand)
	if err != nil {
		return false, fmt.Errorf("variable %q operator %q: %w", cond.Variable, cond.Operator, err)
	}
	return ok, nil
}

// resolveVariable calls the named accessor and coerces its result.
func resolveVariable(ctx context.Context, vars VariableProvider, name string) (Value, error) {
	v, ok := vars.Variable(name)
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", types.ErrUndefinedVariable, name)
	}
	raw, err := v.Get(ctx)
	if err != nil {
		return Value{}, fmt.Errorf("variable %q: %w", name, err)
	}
	value, err := NewValue(v.Kind, raw)
	if err != nil {
		return Value{}, fmt.Errorf("variable %q: %w", name, err)
	}
	return value, nil
}
