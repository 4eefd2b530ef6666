// internal/money/money_test.go
package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	m, err := FromString("123.456", "INR")
	require.NoError(t, err)
	assert.Equal(t, "INR", m.Currency())
	assert.Equal(t, "123.46", m.String())

	m, err = FromString("not-a-number", "INR")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.True(t, m.IsZero(), "parse failure falls back to zero")
}

func TestFromMinorUnits(t *testing.T) {
	m := FromMinorUnits(12345, "USD")
	assert.Equal(t, "123.45", m.String())
}

func TestAddCurrencyMismatch(t *testing.T) {
	a := FromMinorUnits(100, "INR")
	b := FromMinorUnits(100, "USD")
	_, err := a.Add(b)
	assert.Error(t, err)
}

func TestApplyPercentDiscount(t *testing.T) {
	cases := []struct {
		price   string
		percent int64
		want    string
	}{
		{"100.00", 10, "90.00"},
		{"100.00", 0, "100.00"},
		{"100.00", 100, "0.00"},
		{"99.99", 33, "66.99"},  // 66.9933 rounds down
		{"10.01", 25, "7.51"},   // 7.5075 rounds half-up
		{"250.00", 15, "212.50"},
	}
	for _, tc := range cases {
		m, err := FromString(tc.price, "INR")
		require.NoError(t, err)
		got := m.ApplyPercentDiscount(decimal.NewFromInt(tc.percent)).Quantize()
		assert.Equal(t, tc.want, got.String(), "%s at %d%%", tc.price, tc.percent)
	}
}

func TestQuantizeHalfUpAndIdempotent(t *testing.T) {
	m, err := FromString("2.675", "AED")
	require.NoError(t, err)
	q := m.Quantize()
	assert.Equal(t, "2.68", q.String())
	assert.True(t, q.Quantize().Equal(q), "quantize is idempotent")
}

func TestSumBeforeQuantize(t *testing.T) {
	// Intermediate sums carry full precision; one final quantize.
	a, _ := FromString("0.005", "INR")
	b, _ := FromString("0.005", "INR")
	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "0.01", sum.Quantize().String())
}

func TestMultiplyByQuantity(t *testing.T) {
	m, _ := FromString("19.99", "USD")
	assert.Equal(t, "59.97", m.MultiplyByQuantity(3).Quantize().String())
}
