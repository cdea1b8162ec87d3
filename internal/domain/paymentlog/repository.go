package paymentlog

import (
	"context"

	"github.com/siteassist/billing-engine/internal/types"
)

// Repository is append-only. Log rows are never updated or deleted.
type Repository interface {
	Create(ctx context.Context, l *Log) error
	ListByPayment(ctx context.Context, paymentID string) ([]*Log, error)
	List(ctx context.Context, filter *types.Filter) ([]*Log, error)
}
