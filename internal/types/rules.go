// internal/types/rules.go
package types

/*
 * Domain types for rule evaluation.
 *
 * Provides Rule, Condition and ActionCall structures produced by
 * internal/rules compilation and consumed by evaluation. These types are
 * wire-format agnostic: JSON/YAML/structpb decoding happens at the loader
 * and API boundary.
 *
 * Key types:
 *   - Rule: condition tree paired with its action call(s)
 *   - Condition: tagged union of ALL/ANY composite or leaf comparison
 *   - ActionCall: named action plus keyword parameters
 */

// Combinator tags a Condition node.
type Combinator int

const (
	CombinatorLeaf Combinator = iota
	CombinatorAll
	CombinatorAny
)

// String returns the rule-document key for the combinator.
func (c Combinator) String() string {
	switch c {
	case CombinatorAll:
		return "all"
	case CombinatorAny:
		return "any"
	default:
		return "leaf"
	}
}

// Condition is one node of a condition tree.
// Composite nodes use Combinator and Children; leaf nodes use the remaining
// fields. A node is never both.
type Condition struct {
	Combinator Combinator
	Children   []Condition // composite only, len >= 1

	Variable        string // leaf: variable name to resolve
	Operator        string // leaf: operator name for the variable's kind
	Value           any    // leaf: literal operand, or variable name when ValueIsVariable
	ValueIsVariable bool
}

// IsLeaf reports whether the node is a leaf comparison.
func (c Condition) IsLeaf() bool {
	return c.Combinator == CombinatorLeaf
}

// ActionCall names an action and its keyword parameters.
type ActionCall struct {
	Name   string
	Params map[string]any // never nil after compilation
}

// Rule is a compiled rule ready for evaluation.
type Rule struct {
	ID         RuleID
	Name       string
	Conditions Condition
	Actions    []ActionCall

	// MultiAction marks rules compiled in legacy mode, where every action of
	// a triggered rule is dispatched.
	MultiAction bool
}
