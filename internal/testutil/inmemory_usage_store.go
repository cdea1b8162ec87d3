package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/siteassist/billing-engine/internal/domain/usage"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

type usageKey struct {
	subscriptionID string
	metric         types.Metric
	periodStart    time.Time
}

type InMemoryUsageStore struct {
	mu      sync.RWMutex
	records map[usageKey]*usage.Record
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		records: make(map[usageKey]*usage.Record),
	}
}

func (s *InMemoryUsageStore) Increment(ctx context.Context, r *usage.Record, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{r.SubscriptionID, r.Metric, r.PeriodStart.UTC()}
	if existing, ok := s.records[key]; ok {
		existing.Quantity += delta
		existing.UpdatedAt = time.Now().UTC()
		return nil
	}

	cp := *r
	cp.Quantity = delta
	s.records[key] = &cp
	return nil
}

func (s *InMemoryUsageStore) Get(ctx context.Context, subscriptionID string, metric types.Metric, periodStart time.Time) (*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[usageKey{subscriptionID, metric, periodStart.UTC()}]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ierr.NewError("usage record not found").
		WithHintf("No usage recorded for metric %s in this period", metric).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryUsageStore) ListForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*usage.Record
	for key, r := range s.records {
		if key.subscriptionID == subscriptionID && key.periodStart.Equal(periodStart.UTC()) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryUsageStore) ListForSubscription(ctx context.Context, subscriptionID string) ([]*usage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*usage.Record
	for key, r := range s.records {
		if key.subscriptionID == subscriptionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryUsageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[usageKey]*usage.Record)
}
