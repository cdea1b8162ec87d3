package dto

import (
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/siteassist/billing-engine/internal/validator"
)

type CreateSubscriptionRequest struct {
	PlanID       string             `json:"plan_id" validate:"required"`
	BillingCycle types.BillingCycle `json:"billing_cycle" validate:"required"`
	Currency     string             `json:"currency"`

	Gateway types.PaymentGateway `json:"gateway" validate:"required"`

	// StartTrial requests a trial period if the plan offers one. A paid
	// subscription is created otherwise and activates on first payment.
	StartTrial bool `json:"start_trial"`

	AutoPayEnabled  bool    `json:"auto_pay_enabled"`
	PaymentMethodID *string `json:"payment_method_id,omitempty"`
	CouponCode      *string `json:"coupon_code,omitempty"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.BillingCycle.Validate(); err != nil {
		return err
	}
	return r.Gateway.Validate()
}

type CancelSubscriptionRequest struct {
	// AtPeriodEnd defers the cancellation to the current period boundary;
	// access continues until then.
	AtPeriodEnd bool   `json:"at_period_end"`
	Reason      string `json:"reason"`
}

type ChangePlanRequest struct {
	PlanID       string             `json:"plan_id" validate:"required"`
	BillingCycle types.BillingCycle `json:"billing_cycle" validate:"required"`
	Reason       string             `json:"reason"`
}

func (r *ChangePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.BillingCycle.Validate()
}

// UpdateAutoPayRequest uses patch fields so enabling, disabling, and
// swapping the stored method or gateway are all expressible without
// ambiguity.
type UpdateAutoPayRequest struct {
	Enabled         types.Patch[bool]                 `json:"enabled"`
	PaymentMethodID types.Patch[string]               `json:"payment_method_id"`
	Gateway         types.Patch[types.PaymentGateway] `json:"gateway"`
}

type SubscriptionResponse struct {
	*subscription.Subscription
}

type AutoPayStatusResponse struct {
	Enabled         bool    `json:"enabled"`
	PaymentMethodID *string `json:"payment_method_id,omitempty"`
	// NextChargeAt and NextChargeAmount preview the upcoming renewal
	NextChargeAt     *string `json:"next_charge_at,omitempty"`
	NextChargeAmount *string `json:"next_charge_amount,omitempty"`
	Currency         string  `json:"currency,omitempty"`
}

type ListSubscriptionsResponse struct {
	Items      []*SubscriptionResponse  `json:"items"`
	Pagination types.PaginationResponse `json:"pagination"`
}

type SubscriptionHistoryResponse struct {
	Items []*subscription.HistoryEntry `json:"items"`
}
