package plan

import (
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/shopspring/decimal"
)

// Plan is a billable tier. Administrative edits never retroactively
// change already-billed periods; subscriptions reference a plan by id and
// resolve prices at invoice time only.
type Plan struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	LookupKey   string `db:"lookup_key" json:"lookup_key"`
	Description string `db:"description" json:"description"`

	// Currency is the primary pricing currency in lowercase 3 letter ISO codes
	Currency     string          `db:"currency" json:"currency"`
	MonthlyPrice decimal.Decimal `db:"monthly_price" json:"monthly_price"`
	AnnualPrice  decimal.Decimal `db:"annual_price" json:"annual_price"`

	// A plan may price in a second currency only when the enable flag is set;
	// both secondary prices must be present in that case.
	SecondaryCurrencyEnabled bool             `db:"secondary_currency_enabled" json:"secondary_currency_enabled"`
	SecondaryCurrency        *string          `db:"secondary_currency" json:"secondary_currency,omitempty"`
	SecondaryMonthlyPrice    *decimal.Decimal `db:"secondary_monthly_price" json:"secondary_monthly_price,omitempty"`
	SecondaryAnnualPrice     *decimal.Decimal `db:"secondary_annual_price" json:"secondary_annual_price,omitempty"`

	TrialDays int `db:"trial_days" json:"trial_days"`

	// Limits caps per-period usage per metric; nil entry means unlimited
	Limits types.PlanLimits `db:"limits" json:"limits"`

	Active bool `db:"active" json:"active"`
	Public bool `db:"public" json:"public"`

	types.BaseModel
}

// PriceFor resolves the per-cycle price in the requested currency.
func (p *Plan) PriceFor(cycle types.BillingCycle, currency string) (decimal.Decimal, error) {
	if currency == "" || currency == p.Currency {
		switch cycle {
		case types.BILLING_CYCLE_MONTHLY:
			return p.MonthlyPrice, nil
		case types.BILLING_CYCLE_ANNUAL:
			return p.AnnualPrice, nil
		}
		return decimal.Zero, ierr.NewError("invalid billing cycle").
			WithHintf("Invalid billing cycle: %s", cycle).
			Mark(ierr.ErrValidation)
	}

	if !p.SecondaryCurrencyEnabled || p.SecondaryCurrency == nil || *p.SecondaryCurrency != currency {
		return decimal.Zero, ierr.NewError("currency not offered by plan").
			WithHintf("Plan %s does not price in %s", p.ID, currency).
			WithReportableDetails(map[string]any{
				"plan_id":  p.ID,
				"currency": currency,
			}).
			Mark(ierr.ErrValidation)
	}

	switch cycle {
	case types.BILLING_CYCLE_MONTHLY:
		if p.SecondaryMonthlyPrice != nil {
			return *p.SecondaryMonthlyPrice, nil
		}
	case types.BILLING_CYCLE_ANNUAL:
		if p.SecondaryAnnualPrice != nil {
			return *p.SecondaryAnnualPrice, nil
		}
	}
	return decimal.Zero, ierr.NewError("secondary price missing").
		WithHintf("Plan %s has no %s price in %s", p.ID, cycle, currency).
		Mark(ierr.ErrLedgerInconsistent)
}

// Validate checks internal consistency of the plan definition.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return ierr.NewError("plan name is required").
			WithHint("Plan name is required").
			Mark(ierr.ErrValidation)
	}
	if p.Currency == "" {
		return ierr.NewError("plan currency is required").
			WithHint("Plan currency is required").
			Mark(ierr.ErrValidation)
	}
	if p.MonthlyPrice.IsNegative() || p.AnnualPrice.IsNegative() {
		return ierr.NewError("plan prices must not be negative").
			WithHint("Plan prices must not be negative").
			Mark(ierr.ErrValidation)
	}
	if p.TrialDays < 0 {
		return ierr.NewError("trial days must not be negative").
			WithHint("Trial days must not be negative").
			Mark(ierr.ErrValidation)
	}
	if p.SecondaryCurrencyEnabled {
		if p.SecondaryCurrency == nil || p.SecondaryMonthlyPrice == nil || p.SecondaryAnnualPrice == nil {
			return ierr.NewError("incomplete secondary currency pricing").
				WithHint("Secondary currency, monthly and annual prices are required when dual pricing is enabled").
				Mark(ierr.ErrValidation)
		}
	}
	for metric := range p.Limits {
		if err := metric.Validate(); err != nil {
			return err
		}
	}
	return nil
}
