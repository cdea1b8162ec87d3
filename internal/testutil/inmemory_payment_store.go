package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/siteassist/billing-engine/internal/domain/payment"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

type InMemoryPaymentStore struct {
	mu       sync.RWMutex
	payments map[string]*payment.Payment
	refunds  []*payment.Refund
}

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		payments: make(map[string]*payment.Payment),
	}
}

func (s *InMemoryPaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; exists {
		return ierr.NewError("payment already exists").
			WithHintf("Payment %s already exists", p.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	if p.IdempotencyKey != nil {
		for _, existing := range s.payments {
			if existing.TenantID == p.TenantID &&
				existing.IdempotencyKey != nil && *existing.IdempotencyKey == *p.IdempotencyKey {
				return ierr.NewError("payment already exists for idempotency key").
					WithHintf("A payment with key %s already exists", *p.IdempotencyKey).
					Mark(ierr.ErrAlreadyExists)
			}
		}
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, exists := s.payments[id]; exists {
		cp := *p
		return &cp, nil
	}
	return nil, paymentNotFound(id)
}

func (s *InMemoryPaymentStore) GetByPaymentReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return s.getBy(func(p *payment.Payment) bool {
		return p.PaymentReference == reference
	}, reference)
}

func (s *InMemoryPaymentStore) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*payment.Payment, error) {
	return s.getBy(func(p *payment.Payment) bool {
		return p.GatewayOrderID != nil && *p.GatewayOrderID == gatewayOrderID
	}, gatewayOrderID)
}

func (s *InMemoryPaymentStore) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*payment.Payment, error) {
	return s.getBy(func(p *payment.Payment) bool {
		return p.GatewayPaymentID != nil && *p.GatewayPaymentID == gatewayPaymentID
	}, gatewayPaymentID)
}

func (s *InMemoryPaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	return s.getBy(func(p *payment.Payment) bool {
		return p.IdempotencyKey != nil && *p.IdempotencyKey == key
	}, key)
}

func (s *InMemoryPaymentStore) getBy(match func(*payment.Payment) bool, ref string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, paymentNotFound(ref)
}

func paymentNotFound(ref string) error {
	return ierr.NewError("payment not found").
		WithHintf("No payment matches %s", ref).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryPaymentStore) Update(ctx context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; !exists {
		return paymentNotFound(p.ID)
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *InMemoryPaymentStore) List(ctx context.Context, filter *types.Filter) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := types.GetTenantID(ctx)
	var out []*payment.Payment
	for _, p := range s.payments {
		if tenantID != "" && p.TenantID != tenantID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryPaymentStore) Count(ctx context.Context, filter *types.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := types.GetTenantID(ctx)
	count := 0
	for _, p := range s.payments {
		if tenantID != "" && p.TenantID != tenantID {
			continue
		}
		count++
	}
	return count, nil
}

func (s *InMemoryPaymentStore) CreateRefund(ctx context.Context, r *payment.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.refunds = append(s.refunds, &cp)
	return nil
}

func (s *InMemoryPaymentStore) ListRefunds(ctx context.Context, paymentID string) ([]*payment.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*payment.Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryPaymentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = make(map[string]*payment.Payment)
	s.refunds = nil
}
