package coupon

import (
	"context"

	"github.com/siteassist/billing-engine/internal/types"
)

type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Update(ctx context.Context, c *Coupon) error
	List(ctx context.Context, filter *types.Filter) ([]*Coupon, error)
	Count(ctx context.Context, filter *types.Filter) (int, error)

	// Redeem increments the redemption counter iff the cap allows it,
	// in a single statement, and records the redemption. Returns
	// ErrInvalidOperation when the coupon is exhausted.
	Redeem(ctx context.Context, couponID string, r *Redemption) error

	ListRedemptions(ctx context.Context, couponID string) ([]*Redemption, error)
}
