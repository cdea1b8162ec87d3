package usage

import (
	"context"
	"time"

	"github.com/siteassist/billing-engine/internal/types"
)

type Repository interface {
	// Increment adds delta to the record keyed by
	// (subscription_id, metric, period_start), inserting the row if it
	// does not exist yet. Implementations must make this a single
	// atomic upsert so concurrent increments never lose updates.
	Increment(ctx context.Context, r *Record, delta int64) error

	Get(ctx context.Context, subscriptionID string, metric types.Metric, periodStart time.Time) (*Record, error)
	ListForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) ([]*Record, error)
	ListForSubscription(ctx context.Context, subscriptionID string) ([]*Record, error)
}
