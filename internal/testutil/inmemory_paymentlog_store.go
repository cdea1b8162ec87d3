package testutil

import (
	"context"
	"sync"

	"github.com/siteassist/billing-engine/internal/domain/paymentlog"
	"github.com/siteassist/billing-engine/internal/types"
)

type InMemoryPaymentLogStore struct {
	mu   sync.RWMutex
	logs []*paymentlog.Log
}

func NewInMemoryPaymentLogStore() *InMemoryPaymentLogStore {
	return &InMemoryPaymentLogStore{}
}

func (s *InMemoryPaymentLogStore) Create(ctx context.Context, l *paymentlog.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *l
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *InMemoryPaymentLogStore) ListByPayment(ctx context.Context, paymentID string) ([]*paymentlog.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*paymentlog.Log
	for _, l := range s.logs {
		if l.PaymentID != nil && *l.PaymentID == paymentID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryPaymentLogStore) List(ctx context.Context, filter *types.Filter) ([]*paymentlog.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*paymentlog.Log, 0, len(s.logs))
	for _, l := range s.logs {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryPaymentLogStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = nil
}
