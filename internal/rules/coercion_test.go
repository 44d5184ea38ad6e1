package rules

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/solatis/rulekeeper/internal/types"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		kind    types.Kind
		want    any
		wantErr error
	}{
		// TEXT
		{name: "text: string passthrough", value: "hello", kind: types.KindText, want: "hello"},
		{name: "text: nil becomes empty", value: nil, kind: types.KindText, want: ""},
		{name: "text: number fails", value: 42, kind: types.KindText, wantErr: types.ErrCoercionFailed},
		{name: "text: boolean fails", value: true, kind: types.KindText, wantErr: types.ErrCoercionFailed},

		// NUMERIC
		{name: "numeric: int", value: 100, kind: types.KindNumeric, want: decimal.NewFromInt(100)},
		{name: "numeric: int64", value: int64(-999), kind: types.KindNumeric, want: decimal.NewFromInt(-999)},
		{name: "numeric: uint64", value: uint64(7), kind: types.KindNumeric, want: decimal.NewFromInt(7)},
		{name: "numeric: float64", value: 42.5, kind: types.KindNumeric, want: decimal.RequireFromString("42.5")},
		{name: "numeric: float32", value: float32(0.5), kind: types.KindNumeric, want: decimal.RequireFromString("0.5")},
		{name: "numeric: decimal passthrough", value: decimal.RequireFromString("3.14159"), kind: types.KindNumeric, want: decimal.RequireFromString("3.14159")},
		{name: "numeric: string fails", value: "25", kind: types.KindNumeric, wantErr: types.ErrCoercionFailed},
		{name: "numeric: boolean fails", value: true, kind: types.KindNumeric, wantErr: types.ErrCoercionFailed},
		{name: "numeric: nil fails", value: nil, kind: types.KindNumeric, wantErr: types.ErrCoercionFailed},
		{name: "numeric: NaN fails", value: math.NaN(), kind: types.KindNumeric, wantErr: types.ErrCoercionFailed},
		{name: "numeric: +Inf fails", value: math.Inf(1), kind: types.KindNumeric, wantErr: types.ErrCoercionFailed},

		// BOOLEAN
		{name: "boolean: true", value: true, kind: types.KindBoolean, want: true},
		{name: "boolean: false", value: false, kind: types.KindBoolean, want: false},
		{name: "boolean: string fails", value: "true", kind: types.KindBoolean, wantErr: types.ErrCoercionFailed},
		{name: "boolean: number fails", value: 1, kind: types.KindBoolean, wantErr: types.ErrCoercionFailed},

		// SELECT
		{name: "select: non-iterable fails", value: 5, kind: types.KindSelect, wantErr: types.ErrCoercionFailed},
		{name: "select: string fails", value: "abc", kind: types.KindSelect, wantErr: types.ErrCoercionFailed},
		{name: "select: nil fails", value: nil, kind: types.KindSelect, wantErr: types.ErrCoercionFailed},
		{name: "select multiple: map fails", value: map[string]any{"a": 1}, kind: types.KindSelectMultiple, wantErr: types.ErrCoercionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.kind, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Coerce() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce() error = %v, want nil", err)
			}
			if want, ok := tt.want.(decimal.Decimal); ok {
				if !got.(decimal.Decimal).Equal(want) {
					t.Errorf("Coerce() = %v, want %v", got, want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Coerce() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoerce_SelectNormalisesSlices(t *testing.T) {
	got, err := Coerce(types.KindSelect, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Coerce() error = %v, want nil", err)
	}
	elems := got.([]any)
	if len(elems) != 2 || elems[0] != "a" || elems[1] != "b" {
		t.Errorf("Coerce() = %v, want [a b]", elems)
	}

	got, err = Coerce(types.KindSelectMultiple, [3]int{1, 2, 3})
	if err != nil {
		t.Fatalf("Coerce() error = %v, want nil", err)
	}
	if len(got.([]any)) != 3 {
		t.Errorf("len(Coerce()) = %d, want 3", len(got.([]any)))
	}
}

func TestCoerce_UnknownKind(t *testing.T) {
	_, err := Coerce(types.KindUnspecified, "x")
	if !errors.Is(err, types.ErrUnknownKind) {
		t.Errorf("Coerce() error = %v, want ErrUnknownKind", err)
	}
}

func TestFloatToDecimal_Exact(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.25, "0.25"},
		{0.5, "0.5"},
		{-1.75, "-1.75"},
		{3, "3"},
		{0.1, "0.1000000000000000055511151231257827021181583404541015625"},
		{math.SmallestNonzeroFloat64, ""},
	}

	for _, tt := range tests {
		got, ok := floatToDecimal(tt.in)
		if !ok {
			t.Fatalf("floatToDecimal(%v) failed", tt.in)
		}
		if tt.want == "" {
			// Subnormal: only check the expansion is exact.
			back, _ := got.Float64()
			if back != tt.in {
				t.Errorf("floatToDecimal(%v) round trip = %v", tt.in, back)
			}
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("floatToDecimal(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNumeric_FloatRoundTripEqualsDecimalLiteral(t *testing.T) {
	fromFloat, err := NewValue(types.KindNumeric, 0.25)
	if err != nil {
		t.Fatalf("NewValue() error = %v, want nil", err)
	}
	op, err := LookupOperator(types.KindNumeric, "equal_to")
	if err != nil {
		t.Fatalf("LookupOperator() error = %v, want nil", err)
	}
	ok, err := op.Apply(fromFloat, decimal.RequireFromString("0.25"))
	if err != nil {
		t.Fatalf("Apply() error = %v, want nil", err)
	}
	if !ok {
		t.Errorf("equal_to(0.25 float, 0.25 decimal) = false, want true")
	}
	if !fromFloat.Raw().(decimal.Decimal).Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("coerced 0.25 = %v, want exactly 0.25", fromFloat.Raw())
	}
}
