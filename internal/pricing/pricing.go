// Package pricing computes subscription amounts from plan prices and coupon discounts.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/edulist/backend/internal/models"
)

// ErrInvalidPlan is returned for a plan type missing from the price table.
var ErrInvalidPlan = errors.New("invalid plan type")

var hundred = decimal.NewFromInt(100)

// planPrices is the per-course price of each plan.
var planPrices = map[models.PlanType]decimal.Decimal{
	models.PlanMonthly: decimal.NewFromInt(99),
	models.PlanYearly:  decimal.NewFromInt(999),
}

// Quote is the priced result of a purchase.
type Quote struct {
	Original decimal.Decimal `json:"original"`
	Discount decimal.Decimal `json:"discount"`
	Final    decimal.Decimal `json:"final"`
}

// PlanPrice returns the per-course price for plan.
func PlanPrice(plan models.PlanType) (decimal.Decimal, error) {
	p, ok := planPrices[plan]
	if !ok {
		return decimal.Zero, ErrInvalidPlan
	}
	return p, nil
}

// ValidPlan reports whether plan has a price.
func ValidPlan(plan models.PlanType) bool {
	_, ok := planPrices[plan]
	return ok
}

// Price computes original = count * planPrice, the rounded percentage discount
// and the final amount, which is never negative. A zero percent means no coupon.
func Price(plan models.PlanType, courseCount int, discountPercent int) (Quote, error) {
	unit, err := PlanPrice(plan)
	if err != nil {
		return Quote{}, err
	}
	if courseCount < 0 {
		courseCount = 0
	}
	original := unit.Mul(decimal.NewFromInt(int64(courseCount)))
	discount := decimal.Zero
	if discountPercent > 0 {
		discount = original.Mul(decimal.NewFromInt(int64(discountPercent))).Div(hundred).Round(2)
	}
	final := original.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return Quote{Original: original, Discount: discount, Final: final.Round(2)}, nil
}

// MinorUnits converts an amount to the provider's integer minor currency units (paise, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
