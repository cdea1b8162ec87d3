package usage

import (
	"time"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

// Record is the accumulated quantity for one metric within one billing
// period of a subscription. The (subscription_id, metric, period_start)
// triple is unique and increments are applied atomically in place.
type Record struct {
	ID             string `db:"id" json:"id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	Metric   types.Metric `db:"metric" json:"metric"`
	Quantity int64        `db:"quantity" json:"quantity"`

	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`

	types.BaseModel
}

func (r *Record) Validate() error {
	if r.SubscriptionID == "" {
		return ierr.NewError("usage record requires a subscription").
			WithHint("Subscription ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := r.Metric.Validate(); err != nil {
		return err
	}
	if r.Quantity < 0 {
		return ierr.NewError("usage quantity must not be negative").
			WithHint("Usage quantity must not be negative").
			Mark(ierr.ErrValidation)
	}
	if !r.PeriodEnd.After(r.PeriodStart) {
		return ierr.NewError("usage period is inverted").
			WithHint("Usage period end must be after period start").
			Mark(ierr.ErrValidation)
	}
	return nil
}
