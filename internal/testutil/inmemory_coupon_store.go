package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/siteassist/billing-engine/internal/domain/coupon"
	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/siteassist/billing-engine/internal/types"
)

type InMemoryCouponStore struct {
	mu          sync.RWMutex
	coupons     map[string]*coupon.Coupon
	redemptions []*coupon.Redemption
}

func NewInMemoryCouponStore() *InMemoryCouponStore {
	return &InMemoryCouponStore{
		coupons: make(map[string]*coupon.Coupon),
	}
}

func (s *InMemoryCouponStore) Create(ctx context.Context, c *coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.coupons[c.ID]; exists {
		return ierr.NewError("coupon already exists").
			WithHintf("Coupon %s already exists", c.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	for _, existing := range s.coupons {
		if existing.Code == c.Code {
			return ierr.NewError("coupon code already exists").
				WithHintf("Coupon code %s is already in use", c.Code).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	cp := *c
	s.coupons[c.ID] = &cp
	return nil
}

func (s *InMemoryCouponStore) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, exists := s.coupons[id]; exists {
		cp := *c
		return &cp, nil
	}
	return nil, couponNotFound(id)
}

func (s *InMemoryCouponStore) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, couponNotFound(code)
}

func couponNotFound(ref string) error {
	return ierr.NewError("coupon not found").
		WithHintf("No coupon matches %s", ref).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryCouponStore) Update(ctx context.Context, c *coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.coupons[c.ID]; !exists {
		return couponNotFound(c.ID)
	}
	cp := *c
	s.coupons[c.ID] = &cp
	return nil
}

func (s *InMemoryCouponStore) List(ctx context.Context, filter *types.Filter) ([]*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*coupon.Coupon
	for _, c := range s.coupons {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryCouponStore) Count(ctx context.Context, filter *types.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.coupons), nil
}

func (s *InMemoryCouponStore) Redeem(ctx context.Context, couponID string, r *coupon.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.coupons[couponID]
	if !exists {
		return couponNotFound(couponID)
	}
	if c.MaxRedemptions != nil && c.Redemptions >= *c.MaxRedemptions {
		return ierr.NewError("coupon exhausted").
			WithHintf("Coupon %s has no redemptions left", c.Code).
			Mark(ierr.ErrInvalidOperation)
	}
	c.Redemptions++

	cp := *r
	s.redemptions = append(s.redemptions, &cp)
	return nil
}

func (s *InMemoryCouponStore) ListRedemptions(ctx context.Context, couponID string) ([]*coupon.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*coupon.Redemption
	for _, r := range s.redemptions {
		if r.CouponID == couponID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryCouponStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons = make(map[string]*coupon.Coupon)
	s.redemptions = nil
}
