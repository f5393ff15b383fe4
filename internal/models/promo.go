package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type PromoCode struct {
	bun.BaseModel `bun:"table:promo_codes,alias:pc"`

	ID            string          `bun:"id,pk" json:"id"`
	Code          string          `bun:"code,notnull,unique" json:"code"`
	DiscountType  DiscountType    `bun:"discount_type,notnull" json:"discount_type"`
	DiscountValue decimal.Decimal `bun:"discount_value,type:decimal(12,2),notnull" json:"discount_value"`
	Stock         int             `bun:"stock,notnull" json:"stock"`
	UsedCount     int             `bun:"used_count,notnull" json:"used_count"`
	ValidFrom     time.Time       `bun:"valid_from,notnull" json:"valid_from"`
	ValidUntil    time.Time       `bun:"valid_until,notnull" json:"valid_until"`
	IsActive      bool            `bun:"is_active,notnull" json:"is_active"`
	CreatedAt     time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull" json:"updated_at"`
}

type PromoInput struct {
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	Stock         int             `json:"stock"`
	ValidFrom     time.Time       `json:"valid_from"`
	ValidUntil    time.Time       `json:"valid_until"`
	IsActive      *bool           `json:"is_active,omitempty"`
}

// NormalizeCode is the canonical stored form of a promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewPromoCode builds an active promo code and validates it. The id is
// left for the caller to assign.
func NewPromoCode(code string, kind DiscountType, value decimal.Decimal, stock int, from, until time.Time) (*PromoCode, error) {
	p := &PromoCode{
		Code:          NormalizeCode(code),
		DiscountType:  kind,
		DiscountValue: value,
		Stock:         stock,
		ValidFrom:     from.UTC(),
		ValidUntil:    until.UTC(),
		IsActive:      true,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PromoCode) Validate() error {
	if p.Code == "" {
		return fmt.Errorf("%w: promo code is required", ErrInvalidInput)
	}
	switch p.DiscountType {
	case DiscountPercentage:
		if !p.DiscountValue.IsPositive() || p.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage must be in (0, 100]", ErrInvalidInput)
		}
	case DiscountFixed:
		if !p.DiscountValue.IsPositive() {
			return fmt.Errorf("%w: fixed discount must be positive", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidInput, p.DiscountType)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	if p.UsedCount < 0 || p.UsedCount > p.Stock {
		return fmt.Errorf("%w: used count must be within [0, stock]", ErrInvalidInput)
	}
	if !p.ValidFrom.Before(p.ValidUntil) {
		return fmt.Errorf("%w: valid_from must be before valid_until", ErrInvalidInput)
	}
	return nil
}

// Usable reports why the promo cannot be redeemed at now, or nil.
func (p *PromoCode) Usable(now time.Time) error {
	switch {
	case !p.IsActive:
		return ErrPromoNotFound
	case now.Before(p.ValidFrom):
		return ErrPromoNotYetValid
	case !now.Before(p.ValidUntil):
		return ErrPromoExpired
	case p.UsedCount >= p.Stock:
		return ErrPromoExhausted
	}
	return nil
}

func (p *PromoCode) Remaining() int {
	if p.UsedCount >= p.Stock {
		return 0
	}
	return p.Stock - p.UsedCount
}
