package promo

import (
	"fmt"

	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is the priced outcome of applying a promo to a subtotal.
type Quote struct {
	Code           string          `json:"code"`
	DiscountType   string          `json:"discount_type"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	Remaining      int             `json:"remaining"`
}

// CalculateDiscount returns the discount for subtotal, always within [0, subtotal].
//
//	percentage: subtotal * value / 100, rounded to 2 decimals
//	fixed:      value, capped at the subtotal
func CalculateDiscount(p *models.PromoCode, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if p == nil || !subtotal.IsPositive() {
		return decimal.Zero, nil
	}

	var amount decimal.Decimal
	switch p.DiscountType {
	case models.DiscountPercentage:
		amount = subtotal.Mul(p.DiscountValue).Div(hundred).Round(2)
	case models.DiscountFixed:
		amount = p.DiscountValue
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported discount type %q", models.ErrInvalidInput, p.DiscountType)
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return amount, nil
}

func quoteFor(p *models.PromoCode, subtotal decimal.Decimal) (*Quote, error) {
	discount, err := CalculateDiscount(p, subtotal)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Code:           p.Code,
		DiscountType:   string(p.DiscountType),
		Subtotal:       subtotal,
		DiscountAmount: discount,
		Total:          subtotal.Sub(discount),
		Remaining:      p.Remaining(),
	}, nil
}
