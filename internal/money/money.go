// Package money converts exact decimal prices to integer cents and formats
// cent amounts for display. All ledger arithmetic happens on the int64
// cent values returned by ToCents.
package money

import (
	"fmt"
	"math"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const currency = gomoney.USD

// ToCents converts a dollar amount to cents, rounding half away from zero
// at the second decimal digit (19.995 -> 2000, 19.994 -> 1999).
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// ParseCents parses a decimal string such as "180.12" and converts it with
// ToCents. Binary floats are never involved.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return ToCents(d), nil
}

// Dollars returns the exact dollar value of a cent amount.
func Dollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatCents renders cents as "$1,234.56".
func FormatCents(cents int64) string {
	return gomoney.New(cents, currency).Display()
}

// MulCents multiplies a non-negative cent price by a non-negative share
// count, reporting false when the product does not fit in an int64.
func MulCents(price, shares int64) (int64, bool) {
	if price > 0 && shares > math.MaxInt64/price {
		return 0, false
	}
	return price * shares, true
}
