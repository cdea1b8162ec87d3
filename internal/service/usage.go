package service

import (
	"context"
	"fmt"

	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/usage"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

type UsageService interface {
	// RecordUsage adds quantity to the tenant's current-period counter
	// for the metric. Recording never blocks on limits; enforcement is
	// CheckLimit's job.
	RecordUsage(ctx context.Context, subscriptionID string, req *dto.RecordUsageRequest) error

	// CheckLimit answers whether one more unit of the metric is allowed
	// under the subscription's plan. Read-only.
	CheckLimit(ctx context.Context, subscriptionID string, metric types.Metric) (*dto.CheckLimitResult, error)

	GetUsageSummary(ctx context.Context, subscriptionID string) (*dto.UsageSummaryResponse, error)
}

type usageService struct {
	ServiceParams
}

func NewUsageService(params ServiceParams) UsageService {
	return &usageService{ServiceParams: params}
}

func (s *usageService) RecordUsage(ctx context.Context, subscriptionID string, req *dto.RecordUsageRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.IsCancelled() {
		return ierr.NewError("subscription is cancelled").
			WithHint("Usage cannot be recorded on a cancelled subscription").
			Mark(ierr.ErrInvalidOperation)
	}

	rec := &usage.Record{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		SubscriptionID: sub.ID,
		Metric:         req.Metric,
		Quantity:       req.Quantity,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}

	return s.UsageRepo.Increment(ctx, rec, req.Quantity)
}

func (s *usageService) CheckLimit(ctx context.Context, subscriptionID string, metric types.Metric) (*dto.CheckLimitResult, error) {
	if err := metric.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.IsCancelled() {
		return &dto.CheckLimitResult{
			Allowed: false,
			Reason:  "subscription is cancelled",
		}, nil
	}

	p, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	limit := p.Limits.Limit(metric)
	if limit == nil {
		return &dto.CheckLimitResult{Allowed: true}, nil
	}

	var current int64
	rec, err := s.UsageRepo.Get(ctx, sub.ID, metric, sub.CurrentPeriodStart)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if rec != nil {
		current = rec.Quantity
	}

	result := &dto.CheckLimitResult{
		Allowed: current < *limit,
		Limit:   limit,
		Current: current,
	}
	if !result.Allowed {
		result.Reason = fmt.Sprintf("%s limit of %d reached for the current billing period", metric, *limit)
	}
	return result, nil
}

func (s *usageService) GetUsageSummary(ctx context.Context, subscriptionID string) (*dto.UsageSummaryResponse, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	p, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	records, err := s.UsageRepo.ListForPeriod(ctx, sub.ID, sub.CurrentPeriodStart)
	if err != nil {
		return nil, err
	}

	used := make(map[types.Metric]int64, len(records))
	for _, rec := range records {
		used[rec.Metric] = rec.Quantity
	}

	resp := &dto.UsageSummaryResponse{
		SubscriptionID: sub.ID,
		PeriodStart:    sub.CurrentPeriodStart,
		PeriodEnd:      sub.CurrentPeriodEnd,
	}

	// Every plan metric appears in the summary, consumed or not.
	for _, metric := range types.AllMetrics {
		limit := p.Limits.Limit(metric)
		item := dto.UsageSummaryItem{
			Metric:  metric,
			Used:    used[metric],
			Limit:   limit,
			Allowed: limit == nil || used[metric] < *limit,
		}
		resp.Items = append(resp.Items, item)
	}

	return resp, nil
}
