package subscription

import (
	"time"

	"github.com/siteassist/billing-engine/internal/types"
)

// Subscription is a tenant's hold on a plan. Its status and period bounds
// are written only by the lifecycle service; the Version column guards the
// renewal transition against concurrent writers.
type Subscription struct {
	// ID is the unique identifier for the subscription
	ID string `db:"id" json:"id"`

	// PlanID is the identifier for the plan in our system
	PlanID string `db:"plan_id" json:"plan_id"`

	// SubscriptionStatus is the billing state of the subscription
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// BillingCycle is the length of each billing period
	BillingCycle types.BillingCycle `db:"billing_cycle" json:"billing_cycle"`

	// Currency is the currency of the subscription in lowercase 3 digit ISO codes
	Currency string `db:"currency" json:"currency"`

	// StartDate is the start date of the subscription
	StartDate time.Time `db:"start_date" json:"start_date"`

	// CurrentPeriodStart is the start of the period the subscription has
	// been invoiced for. The interval [CurrentPeriodStart, CurrentPeriodEnd)
	// is half-open and never overlaps the next period.
	CurrentPeriodStart time.Time `db:"current_period_start" json:"current_period_start"`

	// CurrentPeriodEnd is the end of the current invoiced period. At this
	// boundary a renewal advances both bounds by exactly one cycle.
	CurrentPeriodEnd time.Time `db:"current_period_end" json:"current_period_end"`

	// TrialStart is the start date of the trial period
	TrialStart *time.Time `db:"trial_start" json:"trial_start"`

	// TrialEnd is the end date of the trial period
	TrialEnd *time.Time `db:"trial_end" json:"trial_end"`

	// CancelledAt is the date the subscription was cancelled
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at"`

	// CancelAt is the date the subscription will be cancelled
	CancelAt *time.Time `db:"cancel_at" json:"cancel_at"`

	// CancelAtPeriodEnd is whether the cancellation is deferred to the
	// current period boundary
	CancelAtPeriodEnd bool `db:"cancel_at_period_end" json:"cancel_at_period_end"`

	// AutoPayEnabled opts the subscription into scheduler-driven renewal charges
	AutoPayEnabled bool `db:"auto_pay_enabled" json:"auto_pay_enabled"`

	// Gateway is the preferred payment gateway for this subscription
	Gateway types.PaymentGateway `db:"gateway" json:"gateway"`

	// PaymentMethodID references the stored payment method at the gateway
	PaymentMethodID *string `db:"payment_method_id" json:"payment_method_id,omitempty"`

	// GatewayCustomerID is the gateway-side customer reference used for
	// stored-method charges
	GatewayCustomerID *string `db:"gateway_customer_id" json:"gateway_customer_id,omitempty"`

	// GatewaySubscriptionID correlates gateway webhook events to this row;
	// looked up by equality, never recomputed
	GatewaySubscriptionID *string `db:"gateway_subscription_id" json:"gateway_subscription_id,omitempty"`

	// Version is bumped on every renewal; the compare-and-set on this
	// column prevents a webhook-driven and a scheduler-driven renewal from
	// both advancing the same period
	Version int `db:"version" json:"version"`

	types.BaseModel
}

// InPeriod reports whether t falls within the current billing period.
func (s *Subscription) InPeriod(t time.Time) bool {
	return !t.Before(s.CurrentPeriodStart) && t.Before(s.CurrentPeriodEnd)
}

// IsCancelled reports whether the subscription reached its terminal state.
func (s *Subscription) IsCancelled() bool {
	return s.SubscriptionStatus == types.SubscriptionStatusCancelled
}
