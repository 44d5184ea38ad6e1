// internal/rules/coercion.go
package rules

import (
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/shopspring/decimal"
	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Typed values and coercion.
 *
 * Every variable result and every binary operator argument is coerced into
 * one of five kinds before comparison. Coercion is strict: a raw value that
 * cannot represent the kind fails with ErrCoercionFailed, never a silent
 * false.
 *
 * Kind modes:
 *   - TEXT: string only; nil becomes ""
 *   - NUMERIC: integers and floats to decimal.Decimal, exact
 *   - BOOLEAN: bool only
 *   - SELECT / SELECT_MULTIPLE: slices and arrays, normalised to []any
 *
 * Float conversion: a float64 is an exact binary rational n/2^k. It is
 * expanded into a decimal at 60 digits of precision, doubling until the
 * quotient multiplies back to the numerator, so 0.25 read from a float
 * equals 0.25 parsed from text. Numeric strings are rejected; decoding
 * belongs to the loaders.
 */

// floatPrecision is the starting scale for exact float expansion.
const floatPrecision = 60

// Value is a raw input coerced into a kind. Immutable.
type Value struct {
	kind types.Kind
	raw  any
}

// NewValue coerces raw into kind.
// Returns an error wrapping ErrCoercionFailed for impossible coercions.
func NewValue(kind types.Kind, raw any) (Value, error) {
	coerced, err := Coerce(kind, raw)
	if err != nil {
		return Value{}, err
	}
	return Value{kind: kind, raw: coerced}, nil
}

// Kind returns the value's kind.
func (v Value) Kind() types.Kind { return v.kind }

// Raw returns the coerced representation: string, decimal.Decimal, bool or []any.
func (v Value) Raw() any { return v.raw }

func (v Value) text() string            { return v.raw.(string) }
func (v Value) number() decimal.Decimal { return v.raw.(decimal.Decimal) }
func (v Value) boolean() bool           { return v.raw.(bool) }
func (v Value) elements() []any         { return v.raw.([]any) }

// Coerce converts raw to the representation used for kind.
func Coerce(kind types.Kind, raw any) (any, error) {
	var (
		out any
		ok  bool
	)
	switch kind {
	case types.KindText:
		out, ok = coerceText(raw)
	case types.KindNumeric:
		out, ok = coerceNumeric(raw)
	case types.KindBoolean:
		out, ok = raw.(bool)
	case types.KindSelect, types.KindSelectMultiple:
		out, ok = coerceSelect(raw)
	default:
		return nil, fmt.Errorf("%w: %v", types.ErrUnknownKind, kind)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v (%T) is not a valid %s value", types.ErrCoercionFailed, raw, raw, kind)
	}
	return out, nil
}

// coerceText accepts strings only. Nil is the empty string.
func coerceText(raw any) (string, bool) {
	if raw == nil {
		return "", true
	}
	s, ok := raw.(string)
	return s, ok
}

// coerceNumeric converts integers and floats to decimal.Decimal.
// Rejects booleans, strings, NaN and infinities.
func coerceNumeric(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case float64:
		return floatToDecimal(v)
	case float32:
		return floatToDecimal(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int8:
		return decimal.NewFromInt(int64(v)), true
	case int16:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0), true
	case uint8:
		return decimal.NewFromInt(int64(v)), true
	case uint16:
		return decimal.NewFromInt(int64(v)), true
	case uint32:
		return decimal.NewFromInt(int64(v)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0), true
	case *big.Int:
		if v == nil {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromBigInt(v, 0), true
	default:
		return decimal.Decimal{}, false
	}
}

// floatToDecimal expands f exactly. The loop terminates because a finite
// float64 has a power-of-two denominator of at most 2^1074, whose decimal
// expansion has at most 1074 fractional digits.
func floatToDecimal(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	r := new(big.Rat).SetFloat64(f)
	num := decimal.NewFromBigInt(r.Num(), 0)
	den := decimal.NewFromBigInt(r.Denom(), 0)

	prec := int32(floatPrecision)
	for {
		q := num.DivRound(den, prec)
		if q.Mul(den).Equal(num) {
			return q, true
		}
		prec *= 2
	}
}

// coerceSelect normalises any slice or array to []any.
// Strings are not element sequences here and are rejected.
func coerceSelect(raw any) ([]any, bool) {
	if raw == nil {
		return nil, false
	}
	if s, ok := raw.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	default:
		return nil, false
	}
}
