package coupon

import (
	"time"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercent DiscountType = "PERCENT"
	DiscountTypeFlat    DiscountType = "FLAT"
)

// Coupon is a tenant-scoped discount code. Redemptions counts usage and
// is incremented atomically so MaxRedemptions is never oversold.
type Coupon struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`

	DiscountType DiscountType    `db:"discount_type" json:"discount_type"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`

	// Currency applies to FLAT coupons only
	Currency *string `db:"currency" json:"currency,omitempty"`

	// MaxRedemptions nil means unlimited
	MaxRedemptions *int64 `db:"max_redemptions" json:"max_redemptions,omitempty"`
	Redemptions    int64  `db:"redemptions" json:"redemptions"`

	ValidFrom  *time.Time `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil *time.Time `db:"valid_until" json:"valid_until,omitempty"`

	types.BaseModel
}

func (c *Coupon) Validate() error {
	if c.Code == "" {
		return ierr.NewError("coupon code is required").
			WithHint("Coupon code is required").
			Mark(ierr.ErrValidation)
	}
	switch c.DiscountType {
	case DiscountTypePercent:
		if c.Amount.IsNegative() || c.Amount.GreaterThan(decimal.NewFromInt(100)) {
			return ierr.NewError("percent discount out of range").
				WithHint("Percent discount must be between 0 and 100").
				Mark(ierr.ErrValidation)
		}
	case DiscountTypeFlat:
		if c.Amount.IsNegative() {
			return ierr.NewError("flat discount must not be negative").
				WithHint("Flat discount must not be negative").
				Mark(ierr.ErrValidation)
		}
		if c.Currency == nil || *c.Currency == "" {
			return ierr.NewError("flat coupon requires a currency").
				WithHint("Flat coupons must specify a currency").
				Mark(ierr.ErrValidation)
		}
	default:
		return ierr.NewError("invalid discount type").
			WithHintf("Discount type must be one of %s, %s", DiscountTypePercent, DiscountTypeFlat).
			Mark(ierr.ErrValidation)
	}
	if c.ValidFrom != nil && c.ValidUntil != nil && c.ValidUntil.Before(*c.ValidFrom) {
		return ierr.NewError("coupon validity window is inverted").
			WithHint("Coupon valid_until must be after valid_from").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ActiveAt reports whether the coupon window covers the given instant.
// The redemption cap is enforced at the database, not here.
func (c *Coupon) ActiveAt(t time.Time) bool {
	if c.Status != types.StatusPublished {
		return false
	}
	if c.ValidFrom != nil && t.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && t.After(*c.ValidUntil) {
		return false
	}
	return true
}

// DiscountOn computes the discount this coupon yields on the given
// amount, clamped so it never exceeds the amount itself.
func (c *Coupon) DiscountOn(amount decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountTypePercent:
		d = amount.Mul(c.Amount).Div(decimal.NewFromInt(100)).Round(2)
	case DiscountTypeFlat:
		d = c.Amount
	}
	if d.GreaterThan(amount) {
		return amount
	}
	return d
}

// Redemption is the append-only record of one coupon use.
type Redemption struct {
	ID             string  `db:"id" json:"id"`
	CouponID       string  `db:"coupon_id" json:"coupon_id"`
	SubscriptionID *string `db:"subscription_id" json:"subscription_id,omitempty"`
	InvoiceID      *string `db:"invoice_id" json:"invoice_id,omitempty"`

	Amount decimal.Decimal `db:"amount" json:"amount"`

	types.BaseModel
}
