// Package money is the fixed-point decimal kernel for the posting path.
// Monetary values are rounded to 2 fractional digits with half-away-from-zero
// semantics; quantities and rates carry up to 6 digits. Nothing in this
// package (or its callers on the posting path) goes through float64.
package money

import (
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
)

const (
	// MoneyScale is the scale of every persisted monetary amount.
	MoneyScale = 2
	// RateScale is the maximum scale for quantities, rates and WAC.
	RateScale = 6
)

var Zero = decimal.Zero

// FromString parses a canonical decimal string.
func FromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperr.E(apperr.InvalidInput, "invalid decimal %q", s)
	}
	return d, nil
}

// MustFromString parses a decimal literal known to be valid at compile time.
// It panics on malformed input and is intended for constants and tests.
func MustFromString(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Round2 rounds a monetary amount to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// Round6 rounds a quantity or rate to 6 digits, half away from zero.
func Round6(d decimal.Decimal) decimal.Decimal {
	return d.Round(RateScale)
}

// EqualMoney compares two amounts at cent precision.
func EqualMoney(a, b decimal.Decimal) bool {
	return Round2(a).Equal(Round2(b))
}

// String2 renders an amount as a canonical two-digit decimal string.
func String2(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

// IsPositive reports d > 0.
func IsPositive(d decimal.Decimal) bool {
	return d.IsPositive()
}

// NonNegative reports d >= 0.
func NonNegative(d decimal.Decimal) bool {
	return !d.IsNegative()
}
