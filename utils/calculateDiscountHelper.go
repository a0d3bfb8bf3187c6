package utils

import (
	"github.com/shopspring/decimal"
)

const (
	DiscountTypePercent = "P"
	DiscountTypeAmount  = "A"
)

// CalculateDiscountAmount returns the discount in currency units.
// Percent discounts are taken from subTotal; amount discounts are capped at subTotal.
func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, discountType string) decimal.Decimal {
	if !discount.IsPositive() || !subTotal.IsPositive() {
		return decimal.Zero
	}

	var discountAmount decimal.Decimal
	if discountType == DiscountTypePercent {
		discountAmount = subTotal.Mul(discount).DivRound(decimal.NewFromInt(100), 4)
	} else {
		discountAmount = discount
	}
	if discountAmount.GreaterThan(subTotal) {
		return subTotal
	}
	return discountAmount
}
