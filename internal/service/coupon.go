package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/coupon"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

type CouponService interface {
	CreateCoupon(ctx context.Context, req *dto.CreateCouponRequest) (*dto.CouponResponse, error)
	GetCoupon(ctx context.Context, id string) (*dto.CouponResponse, error)
	ListCoupons(ctx context.Context, filter *types.Filter) (*dto.ListCouponsResponse, error)
	// ValidateCoupon previews the discount without consuming a redemption.
	ValidateCoupon(ctx context.Context, code string, amount decimal.Decimal) (*dto.ValidateCouponResponse, error)
	// RedeemCoupon consumes one redemption atomically and returns the
	// discount applied to the given amount.
	RedeemCoupon(ctx context.Context, code string, amount decimal.Decimal, subscriptionID, invoiceID *string) (decimal.Decimal, error)
}

type couponService struct {
	ServiceParams
}

func NewCouponService(params ServiceParams) CouponService {
	return &couponService{ServiceParams: params}
}

func (s *couponService) CreateCoupon(ctx context.Context, req *dto.CreateCouponRequest) (*dto.CouponResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c := req.ToCoupon(ctx)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.CouponRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.Logger.Infow("coupon created", "coupon_id", c.ID, "code", c.Code)
	return &dto.CouponResponse{Coupon: c}, nil
}

func (s *couponService) GetCoupon(ctx context.Context, id string) (*dto.CouponResponse, error) {
	c, err := s.CouponRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.CouponResponse{Coupon: c}, nil
}

func (s *couponService) ListCoupons(ctx context.Context, filter *types.Filter) (*dto.ListCouponsResponse, error) {
	if filter == nil {
		f := types.GetDefaultFilter()
		filter = &f
	}

	coupons, err := s.CouponRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	count, err := s.CouponRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListCouponsResponse{
		Items: lo.Map(coupons, func(c *coupon.Coupon, _ int) *dto.CouponResponse {
			return &dto.CouponResponse{Coupon: c}
		}),
		Pagination: types.NewPaginationResponse(count, filter.Limit, filter.Offset),
	}, nil
}

func (s *couponService) ValidateCoupon(ctx context.Context, code string, amount decimal.Decimal) (*dto.ValidateCouponResponse, error) {
	c, err := s.CouponRepo.GetByCode(ctx, code)
	if err != nil {
		if ierr.IsNotFound(err) {
			return &dto.ValidateCouponResponse{Valid: false, Reason: "coupon not found", Discount: decimal.Zero}, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !c.ActiveAt(now) {
		return &dto.ValidateCouponResponse{Valid: false, Reason: "coupon is not active", Discount: decimal.Zero}, nil
	}
	if c.MaxRedemptions != nil && c.Redemptions >= *c.MaxRedemptions {
		return &dto.ValidateCouponResponse{Valid: false, Reason: "coupon redemption limit reached", Discount: decimal.Zero}, nil
	}

	return &dto.ValidateCouponResponse{Valid: true, Discount: c.DiscountOn(amount)}, nil
}

func (s *couponService) RedeemCoupon(ctx context.Context, code string, amount decimal.Decimal, subscriptionID, invoiceID *string) (decimal.Decimal, error) {
	c, err := s.CouponRepo.GetByCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}

	now := time.Now().UTC()
	if !c.ActiveAt(now) {
		return decimal.Zero, ierr.NewError("coupon is not active").
			WithHintf("Coupon %s is not currently redeemable", code).
			Mark(ierr.ErrInvalidOperation)
	}

	discount := c.DiscountOn(amount)

	red := &coupon.Redemption{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_COUPON_REDEMPTION),
		CouponID:       c.ID,
		SubscriptionID: subscriptionID,
		InvoiceID:      invoiceID,
		Amount:         discount,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}

	// The cap is enforced inside Redeem, not by the read above.
	if err := s.CouponRepo.Redeem(ctx, c.ID, red); err != nil {
		return decimal.Zero, err
	}

	s.Logger.Infow("coupon redeemed",
		"coupon_id", c.ID,
		"code", c.Code,
		"discount", discount.String())
	return discount, nil
}
