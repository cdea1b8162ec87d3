package dto

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/domain/coupon"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/siteassist/billing-engine/internal/validator"
)

type CreateCouponRequest struct {
	Code         string              `json:"code" validate:"required"`
	DiscountType coupon.DiscountType `json:"discount_type" validate:"required"`
	Amount       decimal.Decimal     `json:"amount"`
	Currency     *string             `json:"currency,omitempty"`

	MaxRedemptions *int64     `json:"max_redemptions,omitempty"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ValidUntil     *time.Time `json:"valid_until,omitempty"`
}

func (r *CreateCouponRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreateCouponRequest) ToCoupon(ctx context.Context) *coupon.Coupon {
	return &coupon.Coupon{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON),
		Code:           r.Code,
		DiscountType:   r.DiscountType,
		Amount:         r.Amount,
		Currency:       r.Currency,
		MaxRedemptions: r.MaxRedemptions,
		ValidFrom:      r.ValidFrom,
		ValidUntil:     r.ValidUntil,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

type CouponResponse struct {
	*coupon.Coupon
}

// ValidateCouponResponse previews the discount a coupon yields on an
// amount without consuming a redemption.
type ValidateCouponResponse struct {
	Valid    bool            `json:"valid"`
	Reason   string          `json:"reason,omitempty"`
	Discount decimal.Decimal `json:"discount"`
}

type ListCouponsResponse struct {
	Items      []*CouponResponse        `json:"items"`
	Pagination types.PaginationResponse `json:"pagination"`
}
