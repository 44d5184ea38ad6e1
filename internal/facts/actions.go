package facts

import (
	"context"
	"fmt"

	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

// BuiltinActions returns the actions available to file and wire based
// evaluation:
//
//   - return_numeric(return_value): returns return_value coerced to numeric
//   - return_text(return_value): returns return_value coerced to text
//   - emit(...): returns its params unchanged
func BuiltinActions() *rules.Actions {
	return rules.NewActions().
		MustRegister("return_numeric", func(_ context.Context, params map[string]any) (any, error) {
			v, err := requireParam(params, "return_value")
			if err != nil {
				return nil, err
			}
			return rules.Coerce(types.KindNumeric, v)
		}, rules.WithParams(map[string]types.InputType{"return_value": types.InputNumeric})).
		MustRegister("return_text", func(_ context.Context, params map[string]any) (any, error) {
			v, err := requireParam(params, "return_value")
			if err != nil {
				return nil, err
			}
			return rules.Coerce(types.KindText, v)
		}, rules.WithParams(map[string]types.InputType{"return_value": types.InputText})).
		MustRegister("emit", func(_ context.Context, params map[string]any) (any, error) {
			out := make(map[string]any, len(params))
			for k, v := range params {
				out[k] = v
			}
			return out, nil
		})
}

func requireParam(params map[string]any, name string) (any, error) {
	v, ok := params[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", types.ErrInvalidActionParams, name)
	}
	return v, nil
}
