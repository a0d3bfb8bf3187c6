package models

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountTolerance absorbs rounding noise when comparing settled amounts.
var AmountTolerance = decimal.NewFromFloat(0.01)

const amountPlaces = 2

// NormalizeAmount rounds half away from zero to 2 decimal places.
func NormalizeAmount(d decimal.Decimal) (decimal.Decimal, error) {
	return d.Round(amountPlaces), nil
}

// AmountFromFloat rejects NaN and infinities before normalizing.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, newError(ErrInvalidAmount, "amount must be a finite number")
	}
	return NormalizeAmount(decimal.NewFromFloat(f))
}

func NormalizePositiveAmount(d decimal.Decimal) (decimal.Decimal, error) {
	v, err := NormalizeAmount(d)
	if err != nil {
		return decimal.Zero, err
	}
	if !v.IsPositive() {
		return decimal.Zero, newError(ErrInvalidAmount, "amount must be greater than zero")
	}
	return v, nil
}

// NormalizeNonNegativeAmount is used for drawer balances, where zero is valid.
func NormalizeNonNegativeAmount(d decimal.Decimal) (decimal.Decimal, error) {
	v, err := NormalizeAmount(d)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, newError(ErrInvalidAmount, "amount must not be negative")
	}
	return v, nil
}

// ParseAmount accepts user formatted strings like "20,000", "MMK 20,000" or
// "Ks 1,234.50" and returns the normalized value.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	for _, unit := range []string{",", "MMK", "mmk", "Ks", "ks"} {
		s = strings.ReplaceAll(s, unit, "")
	}
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	if s == "" {
		return decimal.Zero, newError(ErrInvalidAmount, "invalid amount")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, newError(ErrInvalidAmount, "invalid amount %q", s)
		}
	}
	clean := s
	if neg {
		clean = "-" + clean
	}
	v, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, newError(ErrInvalidAmount, "invalid amount")
	}
	return NormalizeAmount(v)
}

// withinTolerance reports |a-b| <= AmountTolerance.
func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(AmountTolerance)
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
