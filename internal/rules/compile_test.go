// internal/rules/compile_test.go
package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/solatis/rulekeeper/internal/types"
)

func decodeRule(t *testing.T, doc string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	return m
}

func TestCompile_SimpleRule(t *testing.T) {
	raw := decodeRule(t, `{
		"id": "rule-001",
		"name": "clearance",
		"conditions": {"all": [
			{"name": "expiration_days", "operator": "less_than", "value": 5},
			{"name": "current_inventory", "operator": "greater_than", "value": 20}
		]},
		"actions": [{"name": "put_on_sale", "params": {"sale_percentage": 0.25}}]
	}`)

	rule, err := Compile(raw)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	if rule.ID != "rule-001" {
		t.Errorf("ID = %v, want rule-001", rule.ID)
	}
	if rule.Name != "clearance" {
		t.Errorf("Name = %v, want clearance", rule.Name)
	}
	want := types.Condition{
		Combinator: types.CombinatorAll,
		Children: []types.Condition{
			{Combinator: types.CombinatorLeaf, Variable: "expiration_days", Operator: "less_than", Value: float64(5)},
			{Combinator: types.CombinatorLeaf, Variable: "current_inventory", Operator: "greater_than", Value: float64(20)},
		},
	}
	if diff := cmp.Diff(want, rule.Conditions); diff != "" {
		t.Errorf("Conditions mismatch (-want +got):\n%s", diff)
	}
	wantActions := []types.ActionCall{{Name: "put_on_sale", Params: map[string]any{"sale_percentage": 0.25}}}
	if diff := cmp.Diff(wantActions, rule.Actions); diff != "" {
		t.Errorf("Actions mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_GeneratesID(t *testing.T) {
	raw := decodeRule(t, `{"conditions": {"name": "a", "operator": "is_true"}, "actions": [{"name": "x"}]}`)
	rule, err := Compile(raw)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if rule.ID == "" {
		t.Error("ID is empty, want generated id")
	}
	if rule.Actions[0].Params == nil {
		t.Error("Params = nil, want empty map")
	}
}

func TestCompile_NestedAndOrderPreserved(t *testing.T) {
	raw := decodeRule(t, `{
		"conditions": {"any": [
			{"name": "c", "operator": "is_true"},
			{"all": [
				{"name": "b", "operator": "is_true"},
				{"name": "a", "operator": "is_true"}
			]}
		]},
		"actions": [{"name": "x"}]
	}`)
	rule, err := Compile(raw)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	root := rule.Conditions
	if root.Combinator != types.CombinatorAny || len(root.Children) != 2 {
		t.Fatalf("root = %+v, want any with 2 children", root)
	}
	if root.Children[0].Variable != "c" {
		t.Errorf("first child = %q, want c", root.Children[0].Variable)
	}
	inner := root.Children[1]
	if inner.Combinator != types.CombinatorAll || inner.Children[0].Variable != "b" || inner.Children[1].Variable != "a" {
		t.Errorf("inner = %+v, want all[b, a]", inner)
	}
}

func TestCompile_ValueIsVariable(t *testing.T) {
	raw := decodeRule(t, `{
		"conditions": {"name": "a", "operator": "equal_to", "value": "b", "value_is_variable": true},
		"actions": [{"name": "x"}]
	}`)
	rule, err := Compile(raw)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if !rule.Conditions.ValueIsVariable {
		t.Error("ValueIsVariable = false, want true")
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing conditions", `{"actions": [{"name": "x"}]}`},
		{"null actions", `{"conditions": {"name": "a", "operator": "is_true"}, "actions": null}`},
		{"missing actions", `{"conditions": {"name": "a", "operator": "is_true"}}`},
		{"empty actions", `{"conditions": {"name": "a", "operator": "is_true"}, "actions": []}`},
		{"two actions", `{"conditions": {"name": "a", "operator": "is_true"}, "actions": [{"name": "x"}, {"name": "y"}]}`},
		{"all mixed with leaf keys", `{"conditions": {"all": [{"name": "a", "operator": "is_true"}], "name": "b"}, "actions": [{"name": "x"}]}`},
		{"all and any together", `{"conditions": {"all": [], "any": []}, "actions": [{"name": "x"}]}`},
		{"empty all", `{"conditions": {"all": []}, "actions": [{"name": "x"}]}`},
		{"any not a list", `{"conditions": {"any": {"name": "a"}}, "actions": [{"name": "x"}]}`},
		{"leaf without operator", `{"conditions": {"name": "a"}, "actions": [{"name": "x"}]}`},
		{"leaf without name", `{"conditions": {"operator": "is_true"}, "actions": [{"name": "x"}]}`},
		{"condition not a mapping", `{"conditions": [1, 2], "actions": [{"name": "x"}]}`},
		{"action without name", `{"conditions": {"name": "a", "operator": "is_true"}, "actions": [{"params": {}}]}`},
		{"params not a mapping", `{"conditions": {"name": "a", "operator": "is_true"}, "actions": [{"name": "x", "params": [1]}]}`},
		{"value_is_variable not bool", `{"conditions": {"name": "a", "operator": "equal_to", "value": "b", "value_is_variable": "yes"}, "actions": [{"name": "x"}]}`},
		{"value_is_variable with number", `{"conditions": {"name": "a", "operator": "equal_to", "value": 3, "value_is_variable": true}, "actions": [{"name": "x"}]}`},
		{"numeric id", `{"id": 7, "conditions": {"name": "a", "operator": "is_true"}, "actions": [{"name": "x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(decodeRule(t, tt.doc))
			if !errors.Is(err, types.ErrInvalidRuleDefinition) {
				t.Errorf("Compile() error = %v, want ErrInvalidRuleDefinition", err)
			}
		})
	}
}

func TestCompile_ParamsNotMapping(t *testing.T) {
	raw := decodeRule(t, `{"conditions": {"name": "a", "operator": "is_true"}, "actions": [{"name": "x", "params": "p"}]}`)
	_, err := Compile(raw)
	if !errors.Is(err, types.ErrInvalidActionParams) || !errors.Is(err, types.ErrInvalidRuleDefinition) {
		t.Errorf("Compile() error = %v, want ErrInvalidActionParams and ErrInvalidRuleDefinition", err)
	}
}

func TestCompile_MultipleActions(t *testing.T) {
	raw := decodeRule(t, `{
		"conditions": {"name": "a", "operator": "is_true"},
		"actions": [{"name": "x"}, {"name": "y"}]
	}`)
	rule, err := Compile(raw, WithMultipleActions())
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if !rule.MultiAction || len(rule.Actions) != 2 {
		t.Errorf("rule = %+v, want multi-action with 2 actions", rule)
	}

	raw = decodeRule(t, `{"conditions": {"name": "a", "operator": "is_true"}, "actions": []}`)
	if _, err := Compile(raw, WithMultipleActions()); !errors.Is(err, types.ErrInvalidRuleDefinition) {
		t.Errorf("Compile(empty actions) error = %v, want ErrInvalidRuleDefinition", err)
	}
}

func TestCompile_YAMLStyleMaps(t *testing.T) {
	raw := map[string]any{
		"conditions": map[any]any{
			"all": []any{
				map[any]any{"name": "a", "operator": "is_true"},
			},
		},
		"actions": []any{
			map[any]any{"name": "x", "params": map[any]any{"n": 1}},
		},
	}
	rule, err := Compile(raw)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	if rule.Actions[0].Params["n"] != 1 {
		t.Errorf("Params = %v, want n=1", rule.Actions[0].Params)
	}
}

func TestCompileList(t *testing.T) {
	var raw []any
	doc := `[
		{"name": "r1", "conditions": {"name": "a", "operator": "is_true"}, "actions": [{"name": "x"}]},
		{"name": "r2", "conditions": {"name": "a", "operator": "is_false"}, "actions": [{"name": "x"}]}
	]`
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	rules, err := CompileList(raw)
	if err != nil {
		t.Fatalf("CompileList() error = %v, want nil", err)
	}
	if len(rules) != 2 || rules[0].Name != "r1" || rules[1].Name != "r2" {
		t.Errorf("CompileList() = %v, want [r1 r2]", rules)
	}

	if _, err := CompileList([]any{"not a rule"}); !errors.Is(err, types.ErrInvalidRuleDefinition) {
		t.Errorf("CompileList() error = %v, want ErrInvalidRuleDefinition", err)
	}
}

func TestCompile_WithCatalog(t *testing.T) {
	vars := NewVariables().
		MustRegister("expiration_days", types.KindNumeric, constant(3)).
		MustRegister("max_days", types.KindNumeric, constant(10))
	actions := NewActions().MustRegister("put_on_sale", noopAction)
	catalog := NewCatalog(vars, actions)

	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name: "valid",
			doc:  `{"conditions": {"name": "expiration_days", "operator": "less_than", "value": "max_days", "value_is_variable": true}, "actions": [{"name": "put_on_sale"}]}`,
		},
		{
			name:    "unknown variable",
			doc:     `{"conditions": {"name": "missing", "operator": "less_than", "value": 1}, "actions": [{"name": "put_on_sale"}]}`,
			wantErr: types.ErrUndefinedVariable,
		},
		{
			name:    "operator not defined for kind",
			doc:     `{"conditions": {"name": "expiration_days", "operator": "starts_with", "value": 1}, "actions": [{"name": "put_on_sale"}]}`,
			wantErr: types.ErrUnknownOperator,
		},
		{
			name:    "unknown referenced variable",
			doc:     `{"conditions": {"name": "expiration_days", "operator": "less_than", "value": "nope", "value_is_variable": true}, "actions": [{"name": "put_on_sale"}]}`,
			wantErr: types.ErrUndefinedVariable,
		},
		{
			name:    "unknown action",
			doc:     `{"conditions": {"name": "expiration_days", "operator": "less_than", "value": 1}, "actions": [{"name": "order_more"}]}`,
			wantErr: types.ErrUndefinedAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(decodeRule(t, tt.doc), WithCatalog(catalog))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Compile() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func constant(v any) VariableFunc {
	return func(context.Context) (any, error) { return v, nil }
}

func noopAction(context.Context, map[string]any) (any, error) { return nil, nil }
