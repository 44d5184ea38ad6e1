// Package ruleset loads compiled rule lists from disk and keeps them current.
package ruleset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
	"gopkg.in/yaml.v3"
)

// Load reads and compiles the rule file at path.
//
// Files ending in .yaml or .yml are decoded as YAML, anything else as JSON.
// The top level is either a list of rules or a mapping with a "rules" list.
func Load(path string, opts ...rules.CompileOption) ([]*types.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}

	var raw any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = decodeYAML(data)
	default:
		raw, err = decodeJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode rules %s: %w", path, err)
	}

	list, err := ruleList(raw)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}

	compiled, err := rules.CompileList(list, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile rules %s: %w", path, err)
	}
	return compiled, nil
}

// Parse compiles rules already decoded into a list or {"rules": [...]}.
func Parse(raw any, opts ...rules.CompileOption) ([]*types.Rule, error) {
	list, err := ruleList(raw)
	if err != nil {
		return nil, err
	}
	return rules.CompileList(list, opts...)
}

func decodeJSON(data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeYAML(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func ruleList(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case map[string]any:
		list, ok := v["rules"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected a \"rules\" list", types.ErrInvalidRuleDefinition)
		}
		return list, nil
	case nil:
		return []any{}, nil
	default:
		return nil, fmt.Errorf("%w: expected a list of rules, got %T", types.ErrInvalidRuleDefinition, raw)
	}
}
