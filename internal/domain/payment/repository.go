package payment

import (
	"context"

	"github.com/siteassist/billing-engine/internal/types"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	GetByPaymentReference(ctx context.Context, reference string) (*Payment, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Payment, error)
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
	List(ctx context.Context, filter *types.Filter) ([]*Payment, error)
	Count(ctx context.Context, filter *types.Filter) (int, error)

	CreateRefund(ctx context.Context, r *Refund) error
	ListRefunds(ctx context.Context, paymentID string) ([]*Refund, error)
}
