package dto

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	"github.com/siteassist/billing-engine/internal/types"
	"github.com/siteassist/billing-engine/internal/validator"
)

type CreatePlanRequest struct {
	Name        string `json:"name" validate:"required"`
	LookupKey   string `json:"lookup_key"`
	Description string `json:"description"`

	Currency     string          `json:"currency" validate:"required,len=3"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
	AnnualPrice  decimal.Decimal `json:"annual_price"`

	SecondaryCurrencyEnabled bool             `json:"secondary_currency_enabled"`
	SecondaryCurrency        *string          `json:"secondary_currency,omitempty"`
	SecondaryMonthlyPrice    *decimal.Decimal `json:"secondary_monthly_price,omitempty"`
	SecondaryAnnualPrice     *decimal.Decimal `json:"secondary_annual_price,omitempty"`

	TrialDays int              `json:"trial_days" validate:"gte=0"`
	Limits    types.PlanLimits `json:"limits"`

	Active bool `json:"active"`
	Public bool `json:"public"`
}

func (r *CreatePlanRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreatePlanRequest) ToPlan(ctx context.Context) *plan.Plan {
	return &plan.Plan{
		ID:                       types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN),
		Name:                     r.Name,
		LookupKey:                r.LookupKey,
		Description:              r.Description,
		Currency:                 r.Currency,
		MonthlyPrice:             r.MonthlyPrice,
		AnnualPrice:              r.AnnualPrice,
		SecondaryCurrencyEnabled: r.SecondaryCurrencyEnabled,
		SecondaryCurrency:        r.SecondaryCurrency,
		SecondaryMonthlyPrice:    r.SecondaryMonthlyPrice,
		SecondaryAnnualPrice:     r.SecondaryAnnualPrice,
		TrialDays:                r.TrialDays,
		Limits:                   r.Limits,
		Active:                   r.Active,
		Public:                   r.Public,
		BaseModel:                types.GetDefaultBaseModel(ctx),
	}
}

// UpdatePlanRequest applies a partial update. Patch fields distinguish
// "clear this value" from "leave unchanged".
type UpdatePlanRequest struct {
	Name        types.Patch[string] `json:"name"`
	Description types.Patch[string] `json:"description"`

	MonthlyPrice types.Patch[decimal.Decimal] `json:"monthly_price"`
	AnnualPrice  types.Patch[decimal.Decimal] `json:"annual_price"`

	SecondaryCurrencyEnabled types.Patch[bool]            `json:"secondary_currency_enabled"`
	SecondaryCurrency        types.Patch[string]          `json:"secondary_currency"`
	SecondaryMonthlyPrice    types.Patch[decimal.Decimal] `json:"secondary_monthly_price"`
	SecondaryAnnualPrice     types.Patch[decimal.Decimal] `json:"secondary_annual_price"`

	TrialDays types.Patch[int]              `json:"trial_days"`
	Limits    types.Patch[types.PlanLimits] `json:"limits"`

	Active types.Patch[bool] `json:"active"`
	Public types.Patch[bool] `json:"public"`
}

type PlanResponse struct {
	*plan.Plan
}

type ListPlansResponse struct {
	Items      []*PlanResponse          `json:"items"`
	Pagination types.PaginationResponse `json:"pagination"`
}
