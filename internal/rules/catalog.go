package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/rulekeeper/internal/types"
)

// Catalog is the static view of a variable registry and an action registry:
// what exists, with which kind and parameters. Used to validate rules at
// load time and to export metadata for rule-authoring tools.
type Catalog struct {
	variables map[string]*Variable
	actions   map[string]*Action
}

// NewCatalog snapshots the given registries.
func NewCatalog(vars *Variables, actions *Actions) *Catalog {
	c := &Catalog{
		variables: make(map[string]*Variable),
		actions:   make(map[string]*Action),
	}
	if vars != nil {
		for _, v := range vars.List() {
			c.variables[v.Name] = v
		}
	}
	if actions != nil {
		for _, a := range actions.List() {
			c.actions[a.Name] = a
		}
	}
	return c
}

// Check reports the first resolution error rule would hit at evaluation.
func (c *Catalog) Check(rule *types.Rule) error {
	if err := c.checkCondition(rule.Conditions); err != nil {
		return err
	}
	for _, call := range rule.Actions {
		if _, ok := c.actions[call.Name]; !ok {
			return fmt.Errorf("%w: %q", types.ErrUndefinedAction, call.Name)
		}
	}
	return nil
}

func (c *Catalog) checkCondition(cond types.Condition) error {
	if !cond.IsLeaf() {
		for _, child := range cond.Children {
			if err := c.checkCondition(child); err != nil {
				return err
			}
		}
		return nil
	}
	v, ok := c.variables[cond.Variable]
	if !ok {
		return fmt.Errorf("%w: %q", types.ErrUndefinedVariable, cond.Variable)
	}
	if _, err := LookupOperator(v.Kind, cond.Operator); err != nil {
		return fmt.Errorf("variable %q: %w", cond.Variable, err)
	}
	if cond.ValueIsVariable {
		name, _ := cond.Value.(string)
		if _, ok := c.variables[name]; !ok {
			return fmt.Errorf("%w: %q", types.ErrUndefinedVariable, name)
		}
	}
	return nil
}

// VariableInfo describes a variable for export.
type VariableInfo struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	FieldType string `json:"field_type"`
	Options   []any  `json:"options"`
}

// ParamInfo describes an action parameter for export.
type ParamInfo struct {
	Name      string          `json:"name"`
	Label     string          `json:"label"`
	FieldType types.InputType `json:"fieldType"`
}

// ActionInfo describes an action for export.
type ActionInfo struct {
	Name   string      `json:"name"`
	Label  string      `json:"label"`
	Params []ParamInfo `json:"params"`
}

// RuleData is everything a rule-authoring tool needs: variables, actions
// and the operators available per kind.
type RuleData struct {
	Variables             []VariableInfo        `json:"variables"`
	Actions               []ActionInfo          `json:"actions"`
	VariableTypeOperators map[string][]Operator `json:"variable_type_operators"`
}

// ExportRuleData describes vars and actions for rule-authoring tools.
func ExportRuleData(vars *Variables, actions *Actions) RuleData {
	return NewCatalog(vars, actions).Export()
}

// Export builds the RuleData for the catalog.
func (c *Catalog) Export() RuleData {
	data := RuleData{
		Variables:             make([]VariableInfo, 0, len(c.variables)),
		Actions:               make([]ActionInfo, 0, len(c.actions)),
		VariableTypeOperators: OperatorsByKind(),
	}
	for _, v := range c.variables {
		options := v.Options
		if options == nil {
			options = []any{}
		}
		data.Variables = append(data.Variables, VariableInfo{
			Name:      v.Name,
			Label:     v.Label,
			FieldType: v.Kind.String(),
			Options:   options,
		})
	}
	for _, a := range c.actions {
		params := make([]ParamInfo, 0, len(a.Params))
		for name, input := range a.Params {
			params = append(params, ParamInfo{Name: name, Label: PrettyLabel(name), FieldType: input})
		}
		sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
		data.Actions = append(data.Actions, ActionInfo{Name: a.Name, Label: a.Label, Params: params})
	}
	sort.Slice(data.Variables, func(i, j int) bool { return data.Variables[i].Name < data.Variables[j].Name })
	sort.Slice(data.Actions, func(i, j int) bool { return data.Actions[i].Name < data.Actions[j].Name })
	return data
}

// OperatorsByKind maps each kind's wire name to its sorted operators.
func OperatorsByKind() map[string][]Operator {
	out := make(map[string][]Operator, len(types.Kinds()))
	for _, k := range types.Kinds() {
		out[k.String()] = Operators(k)
	}
	return out
}
