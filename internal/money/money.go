// internal/money/money.go
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for malformed monetary input. Callers that
// accept optional money fields substitute Zero and log the substitution.
var ErrInvalidAmount = errors.New("invalid monetary amount")

var (
	hundred = decimal.NewFromInt(100)
)

// Money is a decimal amount tagged with an ISO 4217 currency code.
// Arithmetic keeps full precision; Quantize rounds to 2 decimal places
// (half-up) and is applied at exposure boundaries only.
type Money struct {
	amount   decimal.Decimal
	currency string
}

func New(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount, currency: currency}
}

func Zero(currency string) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// FromString parses a decimal string like "90.00". Malformed input yields
// ErrInvalidAmount; the zero value is returned alongside so callers applying
// the default-to-zero policy can use it directly.
func FromString(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero(currency), fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Money{amount: d, currency: currency}, nil
}

// FromMinorUnits builds a Money from integer minor units (e.g. paise, cents).
func FromMinorUnits(minor int64, currency string) Money {
	return Money{amount: decimal.New(minor, -2), currency: currency}
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// Add sums two amounts of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return m, fmt.Errorf("currency mismatch: %s + %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// MultiplyByQuantity scales the amount by an integer line quantity.
func (m Money) MultiplyByQuantity(qty int) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(qty))), currency: m.currency}
}

// ApplyPercentDiscount returns the amount after a percentage discount,
// amount × (100 − percent) / 100. Percent is taken as-is; range validation
// happens at the write boundary.
func (m Money) ApplyPercentDiscount(percent decimal.Decimal) Money {
	factor := hundred.Sub(percent).Div(hundred)
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Quantize rounds to 2 decimal places, half away from zero. Idempotent.
func (m Money) Quantize() Money {
	return Money{amount: m.amount.Round(2), currency: m.currency}
}

// String renders the quantized amount, e.g. "682.00".
func (m Money) String() string {
	return m.amount.Round(2).StringFixed(2)
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}
