package dto

import (
	"time"

	"github.com/siteassist/billing-engine/internal/types"
	"github.com/siteassist/billing-engine/internal/validator"
)

type RecordUsageRequest struct {
	Metric   types.Metric `json:"metric" validate:"required"`
	Quantity int64        `json:"quantity" validate:"required,gt=0"`
}

func (r *RecordUsageRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Metric.Validate()
}

// UsageSummaryItem reports one metric's position against its plan limit
// for the current billing period.
type UsageSummaryItem struct {
	Metric  types.Metric `json:"metric"`
	Used    int64        `json:"used"`
	Limit   *int64       `json:"limit,omitempty"`
	Allowed bool         `json:"allowed"`
}

type UsageSummaryResponse struct {
	SubscriptionID string             `json:"subscription_id"`
	PeriodStart    time.Time          `json:"period_start"`
	PeriodEnd      time.Time          `json:"period_end"`
	Items          []UsageSummaryItem `json:"items"`
}

// CheckLimitResult is the internal answer to "may this tenant consume
// one more unit of this metric".
type CheckLimitResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Limit   *int64 `json:"limit,omitempty"`
	Current int64  `json:"current"`
}
