package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// CentsToDecimal converts an amount in minor units to a decimal dollar value.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// DecimalToCents converts a dollar amount to minor units, rounding half away
// from zero. Amounts that do not fit in int64 cents match ErrInvalidBid.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	c := d.Shift(2).Round(0)
	if c.GreaterThan(maxCents) || c.LessThan(minCents) {
		return 0, fmt.Errorf("amount %s out of range: %w", d.String(), ErrInvalidBid)
	}
	return c.IntPart(), nil
}

// FormatCents renders an amount as "$1,250.00".
func FormatCents(cents int64) string {
	d := CentsToDecimal(cents)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	s := d.StringFixed(2)
	whole, frac := s[:len(s)-3], s[len(s)-3:]
	var out []byte
	for i := range len(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, whole[i])
	}
	return sign + "$" + string(out) + frac
}
