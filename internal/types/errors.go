package types

import "errors"

// Sentinel errors for RuleKeeper operations. Callers wrap them with the
// offending name via fmt.Errorf("%w") and match with errors.Is.
var (
	// ErrInvalidRuleDefinition indicates malformed rule data: wrong action
	// count, mixed composite keys, empty all/any lists, missing fields.
	ErrInvalidRuleDefinition = errors.New("invalid rule definition")

	// ErrUndefinedVariable indicates a rule references a variable the
	// provider does not define.
	ErrUndefinedVariable = errors.New("variable is not defined")

	// ErrUndefinedAction indicates a rule references an action the provider
	// does not define.
	ErrUndefinedAction = errors.New("action is not defined")

	// ErrUnknownOperator indicates an operator name that does not exist for
	// the variable's kind.
	ErrUnknownOperator = errors.New("operator does not exist for kind")

	// ErrCoercionFailed indicates a value cannot be interpreted as its
	// declared kind.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrNoRuleTriggered indicates first-trigger evaluation found no rule
	// whose conditions held, or the triggered rule produced more than one
	// action result.
	ErrNoRuleTriggered = errors.New("no rule triggered")

	// ErrDataUnavailable is the recoverable-absence signal. A variable
	// accessor returns it (possibly wrapped) when the data needed to answer
	// is not currently available; the leaf evaluates to false.
	ErrDataUnavailable = errors.New("variable data unavailable")

	// ErrUnknownKind indicates an unrecognised value kind name.
	ErrUnknownKind = errors.New("unknown value kind")

	// ErrUnknownInputType indicates an unrecognised operator/parameter input type.
	ErrUnknownInputType = errors.New("unknown input type")

	// ErrDuplicateName indicates a variable or action registered twice.
	ErrDuplicateName = errors.New("name already registered")

	// ErrInvalidActionParams indicates action params that are not a mapping,
	// or that lack a parameter the action needs.
	ErrInvalidActionParams = errors.New("invalid action params")
)
