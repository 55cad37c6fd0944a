// Package money holds the fixed-point helpers used for every currency amount
// in the payment core. Amounts are never handled as binary floats.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for currency amounts.
const Places = 2

var ErrInvalidAmount = errors.New("invalid amount")

// Quantize converts v to a decimal rounded half-up to two places.
// Negative and non-numeric inputs are rejected.
func Quantize(v any) (decimal.Decimal, error) {
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d.String())
	}
	// Round is half away from zero, which is half-up for non-negative values.
	return d.Round(Places), nil
}

// MustQuantize is Quantize for literals; it panics on bad input.
func MustQuantize(v any) decimal.Decimal {
	d, err := Quantize(v)
	if err != nil {
		panic(err)
	}
	return d
}

// SafeCompare reports whether a and b are equal once both are quantized.
// Anything that fails to quantize compares unequal.
func SafeCompare(a, b any) bool {
	qa, err := Quantize(a)
	if err != nil {
		return false
	}
	qb, err := Quantize(b)
	if err != nil {
		return false
	}
	return qa.Equal(qb)
}

// String renders d with exactly two fractional digits.
func String(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, fmt.Errorf("%w: nil", ErrInvalidAmount)
		}
		return *x, nil
	case string:
		return parseString(x)
	case json.Number:
		return parseString(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, x)
		}
		return decimal.NewFromFloat(x), nil
	case float32:
		return toDecimal(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int32:
		return decimal.NewFromInt32(x), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case uint:
		return decimal.NewFromInt(int64(x)), nil
	case nil:
		return decimal.Zero, fmt.Errorf("%w: nil", ErrInvalidAmount)
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
	}
}

func parseString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
