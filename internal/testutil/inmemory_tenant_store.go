package testutil

import (
	"context"
	"sync"

	"github.com/siteassist/billing-engine/internal/domain/tenant"
	ierr "github.com/siteassist/billing-engine/internal/errors"
)

type InMemoryTenantStore struct {
	mu      sync.RWMutex
	tenants map[string]*tenant.Tenant
}

func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{
		tenants: make(map[string]*tenant.Tenant),
	}
}

func (s *InMemoryTenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; exists {
		return ierr.NewError("tenant already exists").
			WithHintf("Tenant %s already exists", t.ID).
			Mark(ierr.ErrAlreadyExists)
	}
	for _, existing := range s.tenants {
		if existing.Email == t.Email {
			return ierr.NewError("tenant email already exists").
				WithHintf("A site is already registered with %s", t.Email).
				Mark(ierr.ErrAlreadyExists)
		}
	}

	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemoryTenantStore) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, exists := s.tenants[id]; exists {
		cp := *t
		return &cp, nil
	}
	return nil, ierr.NewError("tenant not found").
		WithHintf("Tenant %s was not found", id).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryTenantStore) GetByEmail(ctx context.Context, email string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if t.Email == email {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ierr.NewError("tenant not found").
		WithHintf("No site is registered with %s", email).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryTenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; !exists {
		return ierr.NewError("tenant not found").
			WithHintf("Tenant %s was not found", t.ID).
			Mark(ierr.ErrNotFound)
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemoryTenantStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = make(map[string]*tenant.Tenant)
}
