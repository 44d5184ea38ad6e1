// internal/rules/provider.go
package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Variable and action providers.
 *
 * Callers register named accessors up front instead of exposing methods for
 * reflection. Each variable carries the kind it produces so the evaluator
 * coerces without inspecting the raw value; each action carries a parameter
 * schema used only for metadata export.
 *
 * Accessors receive the evaluation context and may block on their own I/O.
 * The evaluator calls them one at a time in tree order.
 */

// VariableFunc produces a variable's raw value. Returning an error that
// wraps types.ErrDataUnavailable makes the referencing leaf false.
type VariableFunc func(ctx context.Context) (any, error)

// ActionFunc executes an action with keyword parameters.
type ActionFunc func(ctx context.Context, params map[string]any) (any, error)

// VariableProvider resolves variable names. Implemented by *Variables.
type VariableProvider interface {
	Variable(name string) (*Variable, bool)
}

// ActionProvider resolves action names. Implemented by *Actions.
type ActionProvider interface {
	Action(name string) (*Action, bool)
}

// Variable is a registered zero-argument accessor.
type Variable struct {
	Name    string
	Label   string
	Kind    types.Kind
	Options []any // selectable values, metadata only
	fn      VariableFunc
}

// Get calls the accessor.
func (v *Variable) Get(ctx context.Context) (any, error) {
	return v.fn(ctx)
}

// Action is a registered action accessor.
type Action struct {
	Name   string
	Label  string
	Params map[string]types.InputType // metadata only, not enforced
	fn     ActionFunc
}

// Call invokes the accessor.
func (a *Action) Call(ctx context.Context, params map[string]any) (any, error) {
	return a.fn(ctx, params)
}

// RegisterOption customises a registration.
type RegisterOption func(*registration)

type registration struct {
	label   string
	options []any
	params  map[string]types.InputType
}

// WithLabel overrides the label derived from the name.
func WithLabel(label string) RegisterOption {
	return func(r *registration) { r.label = label }
}

// WithOptions records the selectable values of a select variable.
func WithOptions(options ...any) RegisterOption {
	return func(r *registration) { r.options = options }
}

// WithParams declares an action's parameters and their input types.
func WithParams(params map[string]types.InputType) RegisterOption {
	return func(r *registration) { r.params = params }
}

func applyOptions(name string, opts []RegisterOption) registration {
	r := registration{label: PrettyLabel(name)}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Variables is a registry of variable accessors.
// Not safe for concurrent registration; build it before evaluating.
type Variables struct {
	byName map[string]*Variable
}

// NewVariables creates an empty registry.
func NewVariables() *Variables {
	return &Variables{byName: make(map[string]*Variable)}
}

// Register adds a variable producing values of kind.
func (vs *Variables) Register(name string, kind types.Kind, fn VariableFunc, opts ...RegisterOption) error {
	if name == "" || fn == nil {
		return fmt.Errorf("variable registration requires a name and accessor")
	}
	if !kind.Valid() {
		return fmt.Errorf("variable %q: %w: %v", name, types.ErrUnknownKind, kind)
	}
	if _, exists := vs.byName[name]; exists {
		return fmt.Errorf("variable %q: %w", name, types.ErrDuplicateName)
	}
	r := applyOptions(name, opts)
	vs.byName[name] = &Variable{Name: name, Label: r.label, Kind: kind, Options: r.options, fn: fn}
	return nil
}

// MustRegister is Register that panics on error, for static setup.
func (vs *Variables) MustRegister(name string, kind types.Kind, fn VariableFunc, opts ...RegisterOption) *Variables {
	if err := vs.Register(name, kind, fn, opts...); err != nil {
		panic(err)
	}
	return vs
}

// Text registers a text variable.
func (vs *Variables) Text(name string, fn VariableFunc, opts ...RegisterOption) error {
	return vs.Register(name, types.KindText, fn, opts...)
}

// Numeric registers a numeric variable.
func (vs *Variables) Numeric(name string, fn VariableFunc, opts ...RegisterOption) error {
	return vs.Register(name, types.KindNumeric, fn, opts...)
}

// Boolean registers a boolean variable.
func (vs *Variables) Boolean(name string, fn VariableFunc, opts ...RegisterOption) error {
	return vs.Register(name, types.KindBoolean, fn, opts...)
}

// Select registers a single-choice variable. Its accessor returns the
// selected elements as a slice; options lists the choices.
func (vs *Variables) Select(name string, fn VariableFunc, options []any, opts ...RegisterOption) error {
	return vs.Register(name, types.KindSelect, fn, append(opts, WithOptions(options...))...)
}

// SelectMultiple registers a multiple-choice variable.
func (vs *Variables) SelectMultiple(name string, fn VariableFunc, options []any, opts ...RegisterOption) error {
	return vs.Register(name, types.KindSelectMultiple, fn, append(opts, WithOptions(options...))...)
}

// Describe returns export metadata for every variable, sorted by name.
func (vs *Variables) Describe() []VariableInfo {
	return NewCatalog(vs, nil).Export().Variables
}

// Variable implements VariableProvider.
func (vs *Variables) Variable(name string) (*Variable, bool) {
	v, ok := vs.byName[name]
	return v, ok
}

// List returns registered variables sorted by name.
func (vs *Variables) List() []*Variable {
	out := make([]*Variable, 0, len(vs.byName))
	for _, v := range vs.byName {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Actions is a registry of action accessors.
type Actions struct {
	byName map[string]*Action
}

// NewActions creates an empty registry.
func NewActions() *Actions {
	return &Actions{byName: make(map[string]*Action)}
}

// Register adds an action. Declared parameters must use known input types.
func (as *Actions) Register(name string, fn ActionFunc, opts ...RegisterOption) error {
	if name == "" || fn == nil {
		return fmt.Errorf("action registration requires a name and accessor")
	}
	if _, exists := as.byName[name]; exists {
		return fmt.Errorf("action %q: %w", name, types.ErrDuplicateName)
	}
	r := applyOptions(name, opts)
	for param, input := range r.params {
		if !input.Valid() || input == types.InputNoInput {
			return fmt.Errorf("%w %q specified for action %s param %s", types.ErrUnknownInputType, input, name, param)
		}
	}
	as.byName[name] = &Action{Name: name, Label: r.label, Params: r.params, fn: fn}
	return nil
}

// MustRegister is Register that panics on error, for static setup.
func (as *Actions) MustRegister(name string, fn ActionFunc, opts ...RegisterOption) *Actions {
	if err := as.Register(name, fn, opts...); err != nil {
		panic(err)
	}
	return as
}

// Describe returns export metadata for every action, sorted by name.
func (as *Actions) Describe() []ActionInfo {
	return NewCatalog(nil, as).Export().Actions
}

// Action implements ActionProvider.
func (as *Actions) Action(name string) (*Action, bool) {
	a, ok := as.byName[name]
	return a, ok
}

// List returns registered actions sorted by name.
func (as *Actions) List() []*Action {
	out := make([]*Action, 0, len(as.byName))
	for _, a := range as.byName {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
