// internal/rules/operators.go
package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solatis/rulekeeper/internal/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

/*
 * Operator table.
 *
 * Immutable map (kind, operator name) -> Operator built once at package
 * init. Lookup of a name the kind does not define is ErrUnknownOperator,
 * never a silent false.
 *
 * Binary operators coerce their argument to the operand's kind before
 * comparing, so "05" against a numeric fails loudly instead of comparing
 * as text. Select contains/does_not_contain take a single element and do
 * not coerce it. Unary operators (InputNoInput) ignore the argument.
 *
 * Numeric: equality is |a-b| <= 1e-6; strict ordering requires a
 * difference greater than epsilon, so values within epsilon are only equal.
 *
 * SelectMultiple operators are compositions of Select contains; the
 * quadratic cost over large collections is accepted.
 */

// Epsilon bounds numeric equality.
var Epsilon = decimal.New(1, -6)

type operatorFunc func(v Value, arg any) (bool, error)

// Operator describes one named predicate available for a kind.
type Operator struct {
	Name  string          `json:"name"`
	Label string          `json:"label"`
	Input types.InputType `json:"input_type"`
	fn    operatorFunc
}

// Apply runs the predicate against v. arg is ignored by unary operators.
func (op Operator) Apply(v Value, arg any) (bool, error) {
	return op.fn(v, arg)
}

var operatorTable = buildOperatorTable()

// LookupOperator resolves (kind, name) to its Operator.
func LookupOperator(kind types.Kind, name string) (Operator, error) {
	ops, ok := operatorTable[kind]
	if !ok {
		return Operator{}, fmt.Errorf("%w: %q for %s", types.ErrUnknownOperator, name, kind)
	}
	op, ok := ops[name]
	if !ok {
		return Operator{}, fmt.Errorf("%w: %q for %s", types.ErrUnknownOperator, name, kind)
	}
	return op, nil
}

// Operators lists the operators defined for kind, sorted by name.
func Operators(kind types.Kind) []Operator {
	ops := make([]Operator, 0, len(operatorTable[kind]))
	for _, op := range operatorTable[kind] {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

func buildOperatorTable() map[types.Kind]map[string]Operator {
	table := map[types.Kind]map[string]Operator{}
	add := func(kind types.Kind, ops ...Operator) {
		m := make(map[string]Operator, len(ops))
		for _, op := range ops {
			if op.Label == "" {
				op.Label = PrettyLabel(op.Name)
			}
			m[op.Name] = op
		}
		table[kind] = m
	}

	add(types.KindText,
		textOp("equal_to", "", func(a, b string) (bool, error) { return a == b, nil }),
		textOp("equal_to_case_insensitive", "Equal To (case insensitive)", func(a, b string) (bool, error) {
			return strings.ToLower(a) == strings.ToLower(b), nil
		}),
		textOp("not_equal_to", "", func(a, b string) (bool, error) { return a != b, nil }),
		textOp("not_equal_to_case_insensitive", "Not Equal To (case insensitive)", func(a, b string) (bool, error) {
			return strings.ToLower(a) != strings.ToLower(b), nil
		}),
		textOp("starts_with", "", func(a, b string) (bool, error) { return strings.HasPrefix(a, b), nil }),
		textOp("ends_with", "", func(a, b string) (bool, error) { return strings.HasSuffix(a, b), nil }),
		textOp("contains", "", func(a, b string) (bool, error) { return strings.Contains(a, b), nil }),
		textOp("matches_regex", "", matchesRegex),
		unaryOp("non_empty", func(v Value) bool { return v.text() != "" }),
	)

	add(types.KindNumeric,
		numericOp("equal_to", numEqual),
		numericOp("greater_than", numGreater),
		numericOp("greater_than_or_equal_to", func(a, b decimal.Decimal) bool {
			return numGreater(a, b) || numEqual(a, b)
		}),
		numericOp("less_than", numLess),
		numericOp("less_than_or_equal_to", func(a, b decimal.Decimal) bool {
			return numLess(a, b) || numEqual(a, b)
		}),
	)

	add(types.KindBoolean,
		unaryOp("is_true", func(v Value) bool { return v.boolean() }),
		unaryOp("is_false", func(v Value) bool { return !v.boolean() }),
	)

	add(types.KindSelect,
		Operator{Name: "contains", Input: types.InputSelect, fn: func(v Value, arg any) (bool, error) {
			return selectContains(v.elements(), arg), nil
		}},
		Operator{Name: "does_not_contain", Input: types.InputSelect, fn: func(v Value, arg any) (bool, error) {
			return !selectContains(v.elements(), arg), nil
		}},
	)

	add(types.KindSelectMultiple,
		multiOp("contains_all", containsAll),
		multiOp("is_contained_by", func(self, other []any) bool { return containsAll(other, self) }),
		multiOp("shares_at_least_one_element_with", sharesAtLeastOne),
		multiOp("shares_exactly_one_element_with", func(self, other []any) bool {
			found := false
			for _, o := range other {
				if selectContains(self, o) {
					if found {
						return false
					}
					found = true
				}
			}
			return found
		}),
		multiOp("shares_no_elements_with", func(self, other []any) bool { return !sharesAtLeastOne(self, other) }),
	)

	return table
}

// textOp builds a binary text operator; the argument is coerced to text.
func textOp(name, label string, cmp func(a, b string) (bool, error)) Operator {
	return Operator{Name: name, Label: label, Input: types.InputText, fn: func(v Value, arg any) (bool, error) {
		other, ok := coerceText(arg)
		if !ok {
			return false, fmt.Errorf("%w: %v (%T) is not a valid %s value", types.ErrCoercionFailed, arg, arg, types.KindText)
		}
		return cmp(v.text(), other)
	}}
}

// numericOp builds a binary numeric operator; the argument is coerced to decimal.
func numericOp(name string, cmp func(a, b decimal.Decimal) bool) Operator {
	return Operator{Name: name, Input: types.InputNumeric, fn: func(v Value, arg any) (bool, error) {
		other, ok := coerceNumeric(arg)
		if !ok {
			return false, fmt.Errorf("%w: %v (%T) is not a valid %s value", types.ErrCoercionFailed, arg, arg, types.KindNumeric)
		}
		return cmp(v.number(), other), nil
	}}
}

// multiOp builds a select-multiple operator; the argument is coerced to a list.
func multiOp(name string, cmp func(self, other []any) bool) Operator {
	return Operator{Name: name, Input: types.InputSelectMultiple, fn: func(v Value, arg any) (bool, error) {
		other, ok := coerceSelect(arg)
		if !ok {
			return false, fmt.Errorf("%w: %v (%T) is not a valid %s value", types.ErrCoercionFailed, arg, arg, types.KindSelectMultiple)
		}
		return cmp(v.elements(), other), nil
	}}
}

func unaryOp(name string, pred func(v Value) bool) Operator {
	return Operator{Name: name, Input: types.InputNoInput, fn: func(v Value, _ any) (bool, error) {
		return pred(v), nil
	}}
}

// matchesRegex uses search semantics: the pattern may match anywhere.
func matchesRegex(s, pattern string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("%w: bad regex %q: %v", types.ErrInvalidRuleDefinition, pattern, err)
	}
	return re.MatchString(s), nil
}

func numEqual(a, b decimal.Decimal) bool   { return a.Sub(b).Abs().LessThanOrEqual(Epsilon) }
func numGreater(a, b decimal.Decimal) bool { return a.Sub(b).GreaterThan(Epsilon) }
func numLess(a, b decimal.Decimal) bool    { return b.Sub(a).GreaterThan(Epsilon) }

func selectContains(elems []any, other any) bool {
	for _, e := range elems {
		if elementEqual(e, other) {
			return true
		}
	}
	return false
}

func containsAll(self, other []any) bool {
	for _, o := range other {
		if !selectContains(self, o) {
			return false
		}
	}
	return true
}

func sharesAtLeastOne(self, other []any) bool {
	for _, o := range other {
		if selectContains(self, o) {
			return true
		}
	}
	return false
}

// elementEqual compares select elements: case-insensitive for two strings,
// by value for two numbers (1 equals 1.0), deep equality otherwise.
func elementEqual(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.ToLower(as) == strings.ToLower(bs)
	}
	if aok || bok {
		return false
	}
	an, aok := coerceNumeric(a)
	bn, bok := coerceNumeric(b)
	if aok && bok {
		return an.Equal(bn)
	}
	return reflect.DeepEqual(a, b)
}

// PrettyLabel turns an identifier like "put_on_sale" into "Put On Sale".
// Casers are stateful, so each call builds its own.
func PrettyLabel(name string) string {
	titleCaser := cases.Title(language.English)
	words := strings.Split(name, "_")
	for i, w := range words {
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}
