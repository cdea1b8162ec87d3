package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/siteassist/billing-engine/internal/domain/subscription"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

type InMemorySubscriptionStore struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription.Subscription
	history       []*subscription.HistoryEntry
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		subscriptions: make(map[string]*subscription.Subscription),
	}
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID]; exists {
		return ierr.NewError("subscription already exists").
			WithHintf("Subscription %s already exists", sub.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, exists := s.subscriptions[id]; exists {
		cp := *sub
		return &cp, nil
	}
	return nil, ierr.NewError("subscription not found").
		WithHintf("Subscription %s was not found", id).
		Mark(ierr.ErrNotFound)
}

func (s *InMemorySubscriptionStore) GetActiveByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.TenantID == tenantID && sub.SubscriptionStatus != types.SubscriptionStatusCancelled {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ierr.NewError("no live subscription for tenant").
		WithHintf("Site %s has no live subscription", tenantID).
		Mark(ierr.ErrNotFound)
}

func (s *InMemorySubscriptionStore) GetByGatewaySubscriptionID(ctx context.Context, gatewayID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.GatewaySubscriptionID != nil && *sub.GatewaySubscriptionID == gatewayID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ierr.NewError("subscription not found").
		WithHintf("No subscription matches gateway reference %s", gatewayID).
		Mark(ierr.ErrNotFound)
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID]; !exists {
		return ierr.NewError("subscription not found").
			WithHintf("Subscription %s was not found", sub.ID).
			Mark(ierr.ErrNotFound)
	}
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *InMemorySubscriptionStore) UpdateWithVersion(ctx context.Context, sub *subscription.Subscription, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.subscriptions[sub.ID]
	if !exists {
		return ierr.NewError("subscription not found").
			WithHintf("Subscription %s was not found", sub.ID).
			Mark(ierr.ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return ierr.NewError("subscription version conflict").
			WithHintf("Subscription %s was modified concurrently", sub.ID).
			Mark(ierr.ErrVersionConflict)
	}

	cp := *sub
	cp.Version = expectedVersion + 1
	s.subscriptions[sub.ID] = &cp
	sub.Version = cp.Version
	return nil
}

func (s *InMemorySubscriptionStore) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if !matchesSubscriptionFilter(sub, filter) {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemorySubscriptionStore) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sub := range s.subscriptions {
		if matchesSubscriptionFilter(sub, filter) {
			count++
		}
	}
	return count, nil
}

func matchesSubscriptionFilter(sub *subscription.Subscription, filter *types.SubscriptionFilter) bool {
	if filter == nil {
		return true
	}
	if filter.TenantID != "" && sub.TenantID != filter.TenantID {
		return false
	}
	if filter.PlanID != "" && sub.PlanID != filter.PlanID {
		return false
	}
	if len(filter.SubscriptionStatus) > 0 && !lo.Contains(filter.SubscriptionStatus, sub.SubscriptionStatus) {
		return false
	}
	return true
}

func (s *InMemorySubscriptionStore) ListDueForRenewal(ctx context.Context, cutoff time.Time) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if !sub.AutoPayEnabled || sub.CancelAtPeriodEnd {
			continue
		}
		if sub.SubscriptionStatus == types.SubscriptionStatusCancelled {
			continue
		}
		if sub.CurrentPeriodEnd.After(cutoff) {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CurrentPeriodEnd.Before(out[j].CurrentPeriodEnd)
	})
	return out, nil
}

func (s *InMemorySubscriptionStore) ListPastBoundary(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.SubscriptionStatus == types.SubscriptionStatusCancelled {
			continue
		}
		trialOver := sub.SubscriptionStatus == types.SubscriptionStatusTrialing &&
			sub.TrialEnd != nil && !sub.TrialEnd.After(now)
		cancelDue := sub.CancelAt != nil && !sub.CancelAt.After(now)
		periodOver := !sub.CurrentPeriodEnd.After(now)
		if !trialOver && !cancelDue && !periodOver {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CurrentPeriodEnd.Before(out[j].CurrentPeriodEnd)
	})
	return out, nil
}

func (s *InMemorySubscriptionStore) AppendHistory(ctx context.Context, entry *subscription.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.history = append(s.history, &cp)
	return nil
}

func (s *InMemorySubscriptionStore) ListHistory(ctx context.Context, subscriptionID string) ([]*subscription.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*subscription.HistoryEntry
	for _, entry := range s.history {
		if entry.SubscriptionID == subscriptionID {
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemorySubscriptionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = make(map[string]*subscription.Subscription)
	s.history = nil
}
