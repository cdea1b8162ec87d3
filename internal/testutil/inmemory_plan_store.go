package testutil

import (
	"context"
	"sync"

	"github.com/siteassist/billing-engine/internal/domain/plan"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

type InMemoryPlanStore struct {
	mu    sync.RWMutex
	plans map[string]*plan.Plan
}

func NewInMemoryPlanStore() *InMemoryPlanStore {
	return &InMemoryPlanStore{
		plans: make(map[string]*plan.Plan),
	}
}

func (s *InMemoryPlanStore) Create(ctx context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID]; exists {
		return ierr.NewError("plan already exists").
			WithHintf("Plan %s already exists", p.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *p
	s.plans[p.ID] = &cp
	return nil
}

func (s *InMemoryPlanStore) Get(ctx context.Context, id string) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, exists := s.plans[id]; exists && p.Status != types.StatusDeleted {
		cp := *p
		return &cp, nil
	}
	return nil, ierr.NewError("plan not found").
		WithHintf("Plan %s was not found", id).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryPlanStore) List(ctx context.Context, filter *types.PlanFilter) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*plan.Plan
	for _, p := range s.plans {
		if !s.matches(p, filter) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryPlanStore) Count(ctx context.Context, filter *types.PlanFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.plans {
		if s.matches(p, filter) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryPlanStore) matches(p *plan.Plan, filter *types.PlanFilter) bool {
	if p.Status == types.StatusDeleted {
		return false
	}
	if filter == nil {
		return true
	}
	if filter.Active != nil && p.Active != *filter.Active {
		return false
	}
	if filter.Public != nil && p.Public != *filter.Public {
		return false
	}
	return true
}

func (s *InMemoryPlanStore) Update(ctx context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID]; !exists {
		return ierr.NewError("plan not found").
			WithHintf("Plan %s was not found", p.ID).
			Mark(ierr.ErrNotFound)
	}
	cp := *p
	s.plans[p.ID] = &cp
	return nil
}

func (s *InMemoryPlanStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.plans[id]
	if !exists || p.Status == types.StatusDeleted {
		return ierr.NewError("plan not found").
			WithHintf("Plan %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	p.Status = types.StatusDeleted
	return nil
}

func (s *InMemoryPlanStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]*plan.Plan)
}
