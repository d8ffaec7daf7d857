// Package money gives the rest of the service one fixed-point amount
// type instead of float64: financial amounts must never go through
// binary floating point.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a fixed-point decimal value. Transaction.Amount carries
// 15 integer + 4 fractional digits; FraudScore carries precision 3,
// scale 2.
type Amount = decimal.Decimal

// Zero is the additive identity, handy for accumulating fraud score.
func Zero() Amount { return decimal.Zero }

// Parse converts a decimal string (e.g. "49.99") into an Amount.
func Parse(s string) (Amount, error) {
	a, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return a, nil
}

// FromFloat is a convenience constructor for call sites (tests, fixtures)
// that only have a float64 in hand; production request parsing should
// prefer Parse on the raw JSON string to avoid float round-off.
func FromFloat(f float64) Amount {
	return decimal.NewFromFloat(f)
}

// IsPositive reports amount > 0.
func IsPositive(a Amount) bool {
	return a.IsPositive()
}

// Clamp01 clamps a score into [0, 1].
func Clamp01(a Amount) Amount {
	if a.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	if a.GreaterThan(one) {
		return one
	}
	return a
}
