// Package types provides domain models shared across RuleKeeper components.
//
// Zero-dependency design for the rule model: rules.go and errors.go use only
// the standard library so the decoded rule representation can be shared by
// the engine, the loaders and the API layer. ID utilities in ids.go import
// uuid but are isolated.
package types

import "fmt"

// RuleID identifies a rule. UUIDv7 when generated, otherwise whatever the
// rule document supplied.
type RuleID string

// EvaluationID identifies one evaluation request (one set of providers run
// against one rule list). UUIDv7.
type EvaluationID string

// Kind is the semantic category of a variable value.
type Kind int

const (
	KindUnspecified Kind = iota
	KindText
	KindNumeric
	KindBoolean
	KindSelect
	KindSelectMultiple
)

var kindNames = map[Kind]string{
	KindText:           "string",
	KindNumeric:        "numeric",
	KindBoolean:        "boolean",
	KindSelect:         "select",
	KindSelectMultiple: "select_multiple",
}

// Kinds lists every concrete kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindText, KindNumeric, KindBoolean, KindSelect, KindSelectMultiple}
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is a concrete kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind converts a wire name ("string", "numeric", ...) to a Kind.
// "text" is accepted as an alias for "string".
func ParseKind(name string) (Kind, error) {
	if name == "text" {
		return KindText, nil
	}
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindUnspecified, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// InputType describes what an operator or action parameter takes as input.
type InputType string

const (
	InputText           InputType = "text"
	InputNumeric        InputType = "numeric"
	InputNoInput        InputType = "none"
	InputSelect         InputType = "select"
	InputSelectMultiple InputType = "select_multiple"
)

// Valid reports whether the input type is one of the known values.
func (t InputType) Valid() bool {
	switch t {
	case InputText, InputNumeric, InputNoInput, InputSelect, InputSelectMultiple:
		return true
	default:
		return false
	}
}
