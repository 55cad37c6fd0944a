package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string with one place", "10.0", "10.00"},
		{"integer", 10, "10.00"},
		{"float", 10.5, "10.50"},
		{"half rounds up", "2.675", "2.68"},
		{"below half rounds down", "2.674", "2.67"},
		{"float half rounds up", 1.005, "1.01"},
		{"json number", json.Number("99.999"), "100.00"},
		{"decimal", decimal.RequireFromString("0.125"), "0.13"},
		{"zero", "0", "0.00"},
		{"padded string", " 7.1 ", "7.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Quantize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, String(got))
			assert.Equal(t, int32(-Places), got.Exponent())
		})
	}
}

func TestQuantize_RejectsBadInput(t *testing.T) {
	for _, in := range []any{"-1", -0.01, "abc", "", nil, struct{}{}, []byte("1")} {
		_, err := Quantize(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, "input %#v", in)
	}
}

func TestQuantize_Idempotent(t *testing.T) {
	for _, in := range []any{"0.005", "123.456", 1e6, "42", 3.14159} {
		once, err := Quantize(in)
		require.NoError(t, err)
		twice, err := Quantize(once)
		require.NoError(t, err)
		assert.True(t, once.Equal(twice))
		assert.Equal(t, String(once), String(twice))
	}
}

func TestSafeCompare(t *testing.T) {
	assert.True(t, SafeCompare(10.00, "10.0"))
	assert.True(t, SafeCompare("100", decimal.NewFromInt(100)))
	assert.True(t, SafeCompare("5.004", "5.00"))
	assert.False(t, SafeCompare(10.00, 10.01))
	assert.False(t, SafeCompare("abc", "abc"))
	assert.False(t, SafeCompare("-1", "-1"))
}

func TestMustQuantize_Panics(t *testing.T) {
	assert.Panics(t, func() { MustQuantize("nope") })
	assert.Equal(t, "1.50", String(MustQuantize("1.5")))
}
