// internal/rules/compile.go
package rules

import (
	"fmt"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Rule compilation and validation.
 *
 * Compiles decoded rule data (nested maps and slices from JSON or YAML) into
 * types.Rule. Definition errors surface here, at load time, instead of in
 * the middle of an evaluation.
 *
 * Compilation workflow:
 *   1. Require "conditions" and a non-null "actions" list
 *   2. Classify each condition map: exactly {all} or {any} is composite,
 *      anything mixing all/any with other keys is rejected, the rest are
 *      leaves requiring name and operator
 *   3. Enforce the action count (exactly one unless legacy multi-action)
 *   4. Optionally check names against a Catalog
 *
 * Condition order is preserved exactly as written: evaluation order is
 * part of the contract because accessors may have side effects.
 */

// CompileOption configures compilation.
type CompileOption func(*compileConfig)

type compileConfig struct {
	multiAction bool
	catalog     *Catalog
}

// WithMultipleActions enables the legacy mode in which a rule may declare
// several actions, all dispatched when it triggers.
func WithMultipleActions() CompileOption {
	return func(c *compileConfig) { c.multiAction = true }
}

// WithCatalog rejects rules referencing variables, operators or actions the
// catalog does not define.
func WithCatalog(catalog *Catalog) CompileOption {
	return func(c *compileConfig) { c.catalog = catalog }
}

// CompileList compiles a decoded list of rules, stopping at the first error.
func CompileList(raw []any, opts ...CompileOption) ([]*types.Rule, error) {
	rules := make([]*types.Rule, 0, len(raw))
	for i, item := range raw {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("%w: rule %d is not a mapping", types.ErrInvalidRuleDefinition, i)
		}
		rule, err := Compile(m, opts...)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Compile validates one decoded rule.
func Compile(raw map[string]any, opts ...CompileOption) (*types.Rule, error) {
	cfg := compileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	rule := &types.Rule{MultiAction: cfg.multiAction}

	if id, ok := raw["id"]; ok && id != nil {
		s, ok := id.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: id must be a non-empty string", types.ErrInvalidRuleDefinition)
		}
		rule.ID = types.RuleID(s)
	} else {
		rule.ID = types.NewRuleID()
	}
	if name, ok := raw["name"].(string); ok {
		rule.Name = name
	}

	condRaw, ok := raw["conditions"]
	if !ok || condRaw == nil {
		return nil, fmt.Errorf("%w: conditions are required", types.ErrInvalidRuleDefinition)
	}
	cond, err := compileCondition(condRaw)
	if err != nil {
		return nil, err
	}
	rule.Conditions = cond

	actions, err := compileActions(raw["actions"])
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: at least one action is required", types.ErrInvalidRuleDefinition)
	}
	if len(actions) > 1 && !cfg.multiAction {
		return nil, fmt.Errorf("%w: you should specify only one action, but specified: %d", types.ErrInvalidRuleDefinition, len(actions))
	}
	rule.Actions = actions

	if cfg.catalog != nil {
		if err := cfg.catalog.Check(rule); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

// compileCondition classifies one condition mapping, recursing into composites.
func compileCondition(raw any) (types.Condition, error) {
	m, ok := asMap(raw)
	if !ok {
		return types.Condition{}, fmt.Errorf("%w: condition must be a mapping, got %T", types.ErrInvalidRuleDefinition, raw)
	}

	_, hasAll := m["all"]
	_, hasAny := m["any"]
	if hasAll || hasAny {
		if len(m) != 1 {
			return types.Condition{}, fmt.Errorf("%w: \"all\"/\"any\" must be the only key of a condition", types.ErrInvalidRuleDefinition)
		}
		combinator, key := types.CombinatorAll, "all"
		if hasAny {
			combinator, key = types.CombinatorAny, "any"
		}
		list, ok := m[key].([]any)
		if !ok || len(list) == 0 {
			return types.Condition{}, fmt.Errorf("%w: %q requires a non-empty list of conditions", types.ErrInvalidRuleDefinition, key)
		}
		children := make([]types.Condition, 0, len(list))
		for _, item := range list {
			child, err := compileCondition(item)
			if err != nil {
				return types.Condition{}, err
			}
			children = append(children, child)
		}
		return types.Condition{Combinator: combinator, Children: children}, nil
	}

	name, ok := m["name"].(string)
	if !ok || name == "" {
		return types.Condition{}, fmt.Errorf("%w: condition requires a variable name", types.ErrInvalidRuleDefinition)
	}
	op, ok := m["operator"].(string)
	if !ok || op == "" {
		return types.Condition{}, fmt.Errorf("%w: condition on %q requires an operator", types.ErrInvalidRuleDefinition, name)
	}
	leaf := types.Condition{
		Combinator: types.CombinatorLeaf,
		Variable:   name,
		Operator:   op,
		Value:      normalize(m["value"]),
	}
	if raw, ok := m["value_is_variable"]; ok && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			return types.Condition{}, fmt.Errorf("%w: value_is_variable on %q must be a boolean", types.ErrInvalidRuleDefinition, name)
		}
		leaf.ValueIsVariable = b
		if _, isName := leaf.Value.(string); b && !isName {
			return types.Condition{}, fmt.Errorf("%w: value of %q must name a variable", types.ErrInvalidRuleDefinition, name)
		}
	}
	return leaf, nil
}

// compileActions decodes the action list. Null params become an empty map.
func compileActions(raw any) ([]types.ActionCall, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: actions are None", types.ErrInvalidRuleDefinition)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: actions must be a list, got %T", types.ErrInvalidRuleDefinition, raw)
	}
	calls := make([]types.ActionCall, 0, len(list))
	for _, item := range list {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("%w: action must be a mapping, got %T", types.ErrInvalidRuleDefinition, item)
		}
		name, ok := m["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: action requires a name", types.ErrInvalidRuleDefinition)
		}
		params := map[string]any{}
		if p, ok := m["params"]; ok && p != nil {
			pm, ok := asMap(p)
			if !ok {
				return nil, fmt.Errorf("%w: %w: params of action %q must be a mapping", types.ErrInvalidRuleDefinition, types.ErrInvalidActionParams, name)
			}
			for k, v := range pm {
				params[k] = normalize(v)
			}
		}
		calls = append(calls, types.ActionCall{Name: name, Params: params})
	}
	return calls, nil
}

// asMap accepts map[string]any and the map[any]any some YAML decoders emit.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// normalize converts nested map[any]any into map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		if m, ok := asMap(t); ok {
			return normalize(m)
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
