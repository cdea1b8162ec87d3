package service

import (
	"context"

	"github.com/samber/lo"
	"github.com/siteassist/billing-engine/internal/api/dto"
	"github.com/siteassist/billing-engine/internal/domain/plan"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

type PlanService interface {
	CreatePlan(ctx context.Context, req *dto.CreatePlanRequest) (*dto.PlanResponse, error)
	GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error)
	ListPlans(ctx context.Context, filter *types.PlanFilter) (*dto.ListPlansResponse, error)
	UpdatePlan(ctx context.Context, id string, req *dto.UpdatePlanRequest) (*dto.PlanResponse, error)
	DeletePlan(ctx context.Context, id string) error
}

type planService struct {
	ServiceParams
}

func NewPlanService(params ServiceParams) PlanService {
	return &planService{ServiceParams: params}
}

func (s *planService) CreatePlan(ctx context.Context, req *dto.CreatePlanRequest) (*dto.PlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.ToPlan(ctx)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.PlanRepo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.Logger.Infow("plan created", "plan_id", p.ID, "name", p.Name)
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) GetPlan(ctx context.Context, id string) (*dto.PlanResponse, error) {
	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) ListPlans(ctx context.Context, filter *types.PlanFilter) (*dto.ListPlansResponse, error) {
	if filter == nil {
		filter = &types.PlanFilter{Filter: types.GetDefaultFilter()}
	}

	plans, err := s.PlanRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.PlanRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &dto.ListPlansResponse{
		Items: lo.Map(plans, func(p *plan.Plan, _ int) *dto.PlanResponse {
			return &dto.PlanResponse{Plan: p}
		}),
		Pagination: types.NewPaginationResponse(count, filter.Limit, filter.Offset),
	}, nil
}

func (s *planService) UpdatePlan(ctx context.Context, id string, req *dto.UpdatePlanRequest) (*dto.PlanResponse, error) {
	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Name.Apply(&p.Name)
	req.Description.Apply(&p.Description)
	req.MonthlyPrice.Apply(&p.MonthlyPrice)
	req.AnnualPrice.Apply(&p.AnnualPrice)
	req.SecondaryCurrencyEnabled.Apply(&p.SecondaryCurrencyEnabled)
	req.TrialDays.Apply(&p.TrialDays)
	req.Limits.Apply(&p.Limits)
	req.Active.Apply(&p.Active)
	req.Public.Apply(&p.Public)

	// Nullable fields: a present patch with the zero value clears them.
	if req.SecondaryCurrency.Present {
		if req.SecondaryCurrency.Value == "" {
			p.SecondaryCurrency = nil
		} else {
			p.SecondaryCurrency = &req.SecondaryCurrency.Value
		}
	}
	if req.SecondaryMonthlyPrice.Present {
		v := req.SecondaryMonthlyPrice.Value
		p.SecondaryMonthlyPrice = &v
	}
	if req.SecondaryAnnualPrice.Present {
		v := req.SecondaryAnnualPrice.Value
		p.SecondaryAnnualPrice = &v
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.PlanRepo.Update(ctx, p); err != nil {
		return nil, err
	}

	s.Logger.Infow("plan updated", "plan_id", p.ID)
	return &dto.PlanResponse{Plan: p}, nil
}

func (s *planService) DeletePlan(ctx context.Context, id string) error {
	p, err := s.PlanRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	// Plans referenced by live subscriptions stay resolvable; the soft
	// delete only hides them from listings and new signups.
	if p.Status == types.StatusDeleted {
		return ierr.NewError("plan already deleted").
			WithHintf("Plan %s is already deleted", id).
			Mark(ierr.ErrInvalidOperation)
	}

	return s.PlanRepo.Delete(ctx, id)
}
