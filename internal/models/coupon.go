package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

func (t DiscountType) IsValid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

type Coupon struct {
	ID            uint            `json:"id" gorm:"primaryKey"`
	Code          string          `json:"code" gorm:"uniqueIndex;not null;size:50"`
	DiscountType  DiscountType    `json:"discount_type" gorm:"not null;size:20"`
	DiscountValue decimal.Decimal `json:"discount_value" gorm:"type:numeric(12,2);not null"`
	IsActive      bool            `json:"is_active" gorm:"not null;default:true"`
	ExpiresAt     *time.Time      `json:"expires_at"`
	CreatedBy     *string         `json:"created_by,omitempty" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Coupon) TableName() string {
	return "coupons"
}

// NormalizeCouponCode is the canonical form codes are stored and looked up in.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsRedeemable reports whether the coupon can be applied at the given instant.
func (c *Coupon) IsRedeemable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}

// Descriptor returns the public view of the discount.
func (c *Coupon) Descriptor() DiscountDescriptor {
	return DiscountDescriptor{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
	}
}

type DiscountDescriptor struct {
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
}

// Quote is a priced cart.
type Quote struct {
	Subtotal decimal.Decimal     `json:"subtotal"`
	Discount decimal.Decimal     `json:"discount"`
	Total    decimal.Decimal     `json:"total"`
	Coupon   *DiscountDescriptor `json:"coupon,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// ApplyDiscount prices a subtotal against an optional coupon. Percentage coupons
// discount subtotal*v/100 rounded to two places; fixed coupons discount v capped
// at the subtotal. The total never goes below zero.
func ApplyDiscount(subtotal decimal.Decimal, d *DiscountDescriptor) Quote {
	quote := Quote{Subtotal: subtotal, Discount: decimal.Zero, Total: subtotal, Coupon: d}
	if d == nil {
		return quote
	}

	switch d.DiscountType {
	case DiscountPercentage:
		quote.Discount = subtotal.Mul(d.DiscountValue).Div(hundred).Round(2)
	case DiscountFixed:
		quote.Discount = decimal.Min(d.DiscountValue, subtotal)
	}

	quote.Total = decimal.Max(decimal.Zero, subtotal.Sub(quote.Discount))
	return quote
}
