package subscription

import (
	"time"

	"github.com/siteassist/billing-engine/internal/types"
)

// HistoryEntry is one row of the append-only subscription audit trail.
// Every state transition, system-triggered ones included, appends exactly
// one entry; entries are never updated or deleted.
type HistoryEntry struct {
	ID             string                      `db:"id" json:"id"`
	SubscriptionID string                      `db:"subscription_id" json:"subscription_id"`
	TenantID       string                      `db:"tenant_id" json:"tenant_id"`
	EventType      types.SubscriptionEventType `db:"event_type" json:"event_type"`
	FromStatus     types.SubscriptionStatus    `db:"from_status" json:"from_status"`
	ToStatus       types.SubscriptionStatus    `db:"to_status" json:"to_status"`
	FromPlanID     *string                     `db:"from_plan_id" json:"from_plan_id,omitempty"`
	ToPlanID       *string                     `db:"to_plan_id" json:"to_plan_id,omitempty"`
	Reason         string                      `db:"reason" json:"reason"`
	CreatedAt      time.Time                   `db:"created_at" json:"created_at"`
	CreatedBy      string                      `db:"created_by" json:"created_by"`
}
