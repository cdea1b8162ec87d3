package invoice

import (
	"context"

	"github.com/siteassist/billing-engine/internal/types"
)

type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	GetByGatewayInvoiceID(ctx context.Context, gatewayInvoiceID string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, filter *types.Filter) ([]*Invoice, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*Invoice, error)
	Count(ctx context.Context, filter *types.Filter) (int, error)

	// NextInvoiceNumber reserves the next number in the tenant's
	// sequence. Must be called inside the transaction that creates
	// the invoice so gaps only appear on rollback.
	NextInvoiceNumber(ctx context.Context) (string, error)
}
