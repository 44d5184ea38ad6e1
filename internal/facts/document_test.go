package facts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

const orderFactsJSON = `{
	"variables": [
		{"name": "payment_type", "kind": "string", "path": "order.payment.type"},
		{"name": "total", "kind": "numeric", "path": "order.total"},
		{"name": "first_sku", "kind": "text", "path": "order.items[0].sku"},
		{"name": "coupon", "kind": "string", "path": "order.coupon"},
		{"name": "tags", "kind": "select_multiple", "path": "order.tags", "options": ["gift", "express"]},
		{"name": "threshold", "kind": "numeric", "value": 100},
		{"name": "vip", "kind": "boolean", "value": null}
	],
	"data": {
		"order": {
			"payment": {"type": "card"},
			"total": 120.5,
			"items": [{"sku": "A-1"}],
			"coupon": null,
			"tags": ["gift"]
		}
	}
}`

const orderFactsYAML = `
variables:
  - name: payment_type
    kind: string
    path: order.payment.type
  - name: total
    kind: numeric
    path: order.total
data:
  order:
    payment:
      type: card
    total: 120
`

func TestDocument_Provider(t *testing.T) {
	doc, err := DecodeJSON([]byte(orderFactsJSON))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v, want nil", err)
	}
	vars, err := doc.Provider()
	if err != nil {
		t.Fatalf("Provider() error = %v, want nil", err)
	}

	ctx := context.Background()
	get := func(name string) (any, error) {
		v, ok := vars.Variable(name)
		if !ok {
			t.Fatalf("Variable(%q) not registered", name)
		}
		return v.Get(ctx)
	}

	if got, err := get("payment_type"); err != nil || got != "card" {
		t.Errorf("payment_type = %v, %v; want card", got, err)
	}
	if got, err := get("first_sku"); err != nil || got != "A-1" {
		t.Errorf("first_sku = %v, %v; want A-1", got, err)
	}
	if got, err := get("threshold"); err != nil || got != float64(100) {
		t.Errorf("threshold = %v, %v; want 100", got, err)
	}
	if _, err := get("coupon"); !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("coupon error = %v, want ErrDataUnavailable", err)
	}
	if _, err := get("vip"); !errors.Is(err, types.ErrDataUnavailable) {
		t.Errorf("vip error = %v, want ErrDataUnavailable", err)
	}

	tags, _ := vars.Variable("tags")
	if tags.Kind != types.KindSelectMultiple || len(tags.Options) != 2 {
		t.Errorf("tags = %+v, want select_multiple with 2 options", tags)
	}
}

func TestDocument_EvaluatesRules(t *testing.T) {
	doc, err := DecodeJSON([]byte(orderFactsJSON))
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	vars, err := doc.Provider()
	if err != nil {
		t.Fatalf("Provider() error = %v", err)
	}

	rule, err := rules.Compile(map[string]any{
		"name": "big card order",
		"conditions": map[string]any{"all": []any{
			map[string]any{"name": "payment_type", "operator": "equal_to", "value": "card"},
			map[string]any{"name": "total", "operator": "greater_than", "value": "threshold", "value_is_variable": true},
			map[string]any{"any": []any{
				map[string]any{"name": "coupon", "operator": "non_empty"},
				map[string]any{"name": "tags", "operator": "shares_at_least_one_element_with", "value": []any{"GIFT"}},
			}},
		}},
		"actions": []any{map[string]any{"name": "return_numeric", "params": map[string]any{"return_value": 0.25}}},
	})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	outcome, err := rules.NewEngine().Run(context.Background(), rule, vars, BuiltinActions())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if outcome == nil {
		t.Fatal("Run() outcome = nil, want triggered")
	}
	got := outcome.Results[0].Result.(decimal.Decimal)
	if !got.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("result = %v, want 0.25", got)
	}
}

func TestDecodeYAML(t *testing.T) {
	doc, err := DecodeYAML([]byte(orderFactsYAML))
	if err != nil {
		t.Fatalf("DecodeYAML() error = %v, want nil", err)
	}
	vars, err := doc.Provider()
	if err != nil {
		t.Fatalf("Provider() error = %v, want nil", err)
	}
	total, _ := vars.Variable("total")
	got, err := total.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != 120 {
		t.Errorf("total = %v (%T), want int 120", got, got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "facts.json")
	yamlPath := filepath.Join(dir, "facts.yml")
	if err := os.WriteFile(jsonPath, []byte(orderFactsJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte(orderFactsYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{jsonPath, yamlPath} {
		doc, err := LoadFile(p)
		if err != nil {
			t.Fatalf("LoadFile(%s) error = %v", p, err)
		}
		if len(doc.Variables) == 0 {
			t.Errorf("LoadFile(%s) has no variables", p)
		}
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadFile(missing) error = nil, want error")
	}
}

func TestFromMap(t *testing.T) {
	doc, err := FromMap(map[string]any{
		"variables": []any{map[string]any{"name": "n", "kind": "numeric", "path": "n"}},
		"data":      map[string]any{"n": 3.0},
	})
	if err != nil {
		t.Fatalf("FromMap() error = %v, want nil", err)
	}
	if len(doc.Variables) != 1 || doc.Data["n"] != 3.0 {
		t.Errorf("FromMap() = %+v", doc)
	}

	if _, err := FromMap(map[string]any{"unexpected": true}); err == nil {
		t.Error("FromMap(unknown field) error = nil, want error")
	}
}

func TestDocument_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		spec    VariableSpec
		wantErr error
	}{
		{"unknown kind", VariableSpec{Name: "x", Kind: "date", Value: 1}, types.ErrUnknownKind},
		{"bad path", VariableSpec{Name: "x", Kind: "numeric", Path: "a..b"}, ErrInvalidPath},
		{"path and value", VariableSpec{Name: "x", Kind: "numeric", Path: "a", Value: 1}, types.ErrInvalidRuleDefinition},
		{"no name", VariableSpec{Kind: "numeric", Value: 1}, types.ErrInvalidRuleDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &Document{Variables: []VariableSpec{tt.spec}}
			if _, err := doc.Provider(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Provider() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	doc := &Document{Variables: []VariableSpec{
		{Name: "x", Kind: "numeric", Value: 1},
		{Name: "x", Kind: "numeric", Value: 2},
	}}
	if _, err := doc.Provider(); !errors.Is(err, types.ErrDuplicateName) {
		t.Errorf("Provider(duplicate) error = %v, want ErrDuplicateName", err)
	}
}
