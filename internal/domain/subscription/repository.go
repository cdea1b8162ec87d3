package subscription

import (
	"context"
	"time"

	"github.com/siteassist/billing-engine/internal/types"
)

// Repository defines the interface for subscription persistence
type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	// GetActiveByTenant returns the tenant's single non-cancelled
	// subscription, or a not found error.
	GetActiveByTenant(ctx context.Context, tenantID string) (*Subscription, error)
	GetByGatewaySubscriptionID(ctx context.Context, gatewayID string) (*Subscription, error)
	Update(ctx context.Context, subscription *Subscription) error
	// UpdateWithVersion persists the subscription only if the stored
	// version still matches expectedVersion, bumping the version on
	// success. A version conflict error means another writer already
	// performed the transition.
	UpdateWithVersion(ctx context.Context, subscription *Subscription, expectedVersion int) error
	List(ctx context.Context, filter *types.SubscriptionFilter) ([]*Subscription, error)
	Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error)
	// ListDueForRenewal returns subscriptions with auto-pay enabled whose
	// current period ends before the cutoff, across all tenants.
	ListDueForRenewal(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
	// ListPastBoundary returns non-cancelled subscriptions whose trial end,
	// cancel-at, or current period end has passed, across all tenants.
	ListPastBoundary(ctx context.Context, now time.Time) ([]*Subscription, error)

	// History is append-only; entries are never updated or deleted.
	AppendHistory(ctx context.Context, entry *HistoryEntry) error
	ListHistory(ctx context.Context, subscriptionID string) ([]*HistoryEntry, error)
}
