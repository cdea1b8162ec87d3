package types

import (
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the status of a subscription.
// Terminal state is cancelled; every other state can still move.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal reports whether no further transitions are possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled
}

// SubscriptionEventType is the action recorded in the subscription history
// audit trail. Every state transition appends exactly one history row.
type SubscriptionEventType string

const (
	SubscriptionEventCreated         SubscriptionEventType = "created"
	SubscriptionEventActivated       SubscriptionEventType = "activated"
	SubscriptionEventTrialStarted    SubscriptionEventType = "trial_started"
	SubscriptionEventTrialExpired    SubscriptionEventType = "trial_expired"
	SubscriptionEventRenewed         SubscriptionEventType = "renewed"
	SubscriptionEventRenewalFailed   SubscriptionEventType = "renewal_failed"
	SubscriptionEventCancelled       SubscriptionEventType = "cancelled"
	SubscriptionEventCancelScheduled SubscriptionEventType = "cancel_scheduled"
	SubscriptionEventReactivated     SubscriptionEventType = "reactivated"
	SubscriptionEventPlanChanged     SubscriptionEventType = "plan_changed"
	SubscriptionEventSuperseded      SubscriptionEventType = "superseded"
)

func (t SubscriptionEventType) String() string {
	return string(t)
}

// SubscriptionFilter represents filters for subscription queries
type SubscriptionFilter struct {
	Filter
	TenantID           string               `form:"tenant_id"`
	PlanID             string               `form:"plan_id"`
	SubscriptionStatus []SubscriptionStatus `form:"subscription_status"`
}

func (f *SubscriptionFilter) Validate() error {
	for _, status := range f.SubscriptionStatus {
		if err := status.Validate(); err != nil {
			return err
		}
	}
	return nil
}
