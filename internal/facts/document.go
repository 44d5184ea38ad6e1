// internal/facts/document.go
package facts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
	"gopkg.in/yaml.v3"
)

// VariableSpec declares one variable of a fact document. Exactly one of
// Path and Value supplies the data; a Value of null is unavailable data.
type VariableSpec struct {
	Name    string `json:"name" yaml:"name"`
	Kind    string `json:"kind" yaml:"kind"`
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Value   any    `json:"value,omitempty" yaml:"value,omitempty"`
	Options []any  `json:"options,omitempty" yaml:"options,omitempty"`
}

// Document is a set of facts: declared variables plus the data their
// paths point into.
type Document struct {
	Variables []VariableSpec `json:"variables" yaml:"variables"`
	Data      map[string]any `json:"data" yaml:"data"`
}

// LoadFile reads a document from disk; .yaml and .yml are YAML, anything
// else JSON.
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(raw)
	default:
		return DecodeJSON(raw)
	}
}

// DecodeJSON parses a JSON fact document.
func DecodeJSON(raw []byte) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	return &doc, nil
}

// DecodeYAML parses a YAML fact document.
func DecodeYAML(raw []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	return &doc, nil
}

// FromMap builds a document from already-decoded data, as received over
// the wire.
func FromMap(m map[string]any) (*Document, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode facts: %w", err)
	}
	return DecodeJSON(raw)
}

// Provider builds the variable registry for the document. Paths are
// parsed here so malformed ones fail before evaluation starts.
func (d *Document) Provider() (*rules.Variables, error) {
	vars := rules.NewVariables()
	for i, spec := range d.Variables {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: variable %d has no name", types.ErrInvalidRuleDefinition, i)
		}
		kind, err := types.ParseKind(spec.Kind)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", spec.Name, err)
		}
		fn, err := d.accessor(spec)
		if err != nil {
			return nil, err
		}
		var opts []rules.RegisterOption
		if spec.Label != "" {
			opts = append(opts, rules.WithLabel(spec.Label))
		}
		if len(spec.Options) > 0 {
			opts = append(opts, rules.WithOptions(spec.Options...))
		}
		if err := vars.Register(spec.Name, kind, fn, opts...); err != nil {
			return nil, err
		}
	}
	return vars, nil
}

func (d *Document) accessor(spec VariableSpec) (rules.VariableFunc, error) {
	if spec.Path != "" {
		if spec.Value != nil {
			return nil, fmt.Errorf("%w: variable %q sets both path and value", types.ErrInvalidRuleDefinition, spec.Name)
		}
		p, err := ParsePath(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", spec.Name, err)
		}
		data := d.Data
		return func(context.Context) (any, error) {
			return Resolve(p, data)
		}, nil
	}

	value := spec.Value
	name := spec.Name
	return func(context.Context) (any, error) {
		if value == nil {
			return nil, fmt.Errorf("%w: variable %q has no value", types.ErrDataUnavailable, name)
		}
		return value, nil
	}, nil
}
