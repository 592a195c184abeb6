package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/renewd/renewd/internal/domain/tenant"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

// InMemoryTenantStore provides an in-memory implementation of tenant.Repository
// with the same version-guard semantics as the real store
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
	if err := types.ValidateTenantContext(ctx); err != nil {
		return ierr.WithError(err).
			WithHint("Writes require a tenant-scoped context").
			Mark(ierr.ErrValidation)
	}
	if t == nil {
		return ierr.NewError("tenant cannot be nil").
			WithHint("Tenant cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[t.ID]; ok {
		return ierr.NewErrorf("tenant %s already exists", t.ID).
			WithHint("A tenant with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	s.tenants[t.ID] = copyTenant(t)
	return nil
}

func (s *InMemoryTenantStore) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, ierr.NewErrorf("tenant %s not found", id).
			WithHint("Tenant not found").
			Mark(ierr.ErrNotFound)
	}
	return copyTenant(t), nil
}

// Update rejects writes whose version does not match the stored record and
// bumps the version on success, mirroring the optimistic guard of the real
// store.
func (s *InMemoryTenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return ierr.WithError(err).
			WithHint("Writes require a tenant-scoped context").
			Mark(ierr.ErrValidation)
	}
	if t == nil {
		return ierr.NewError("tenant cannot be nil").
			WithHint("Tenant cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tenants[t.ID]
	if !ok {
		return ierr.NewErrorf("tenant %s not found", t.ID).
			WithHint("Tenant not found").
			Mark(ierr.ErrNotFound)
	}

	if stored.Version != t.Version {
		return ierr.NewErrorf("tenant %s version mismatch: have %d, want %d", t.ID, t.Version, stored.Version).
			WithHint("The tenant was modified concurrently, retry the operation").
			Mark(ierr.ErrVersionConflict)
	}

	updated := copyTenant(t)
	updated.Version++
	updated.UpdatedAt = time.Now().UTC()
	s.tenants[t.ID] = updated

	t.Version = updated.Version
	return nil
}

func (s *InMemoryTenantStore) List(ctx context.Context, filter *tenant.ListFilter) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filtered(filter)

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(matched) {
				return []*tenant.Tenant{}, nil
			}
			matched = matched[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(matched) {
			matched = matched[:filter.Limit]
		}
	}

	result := make([]*tenant.Tenant, 0, len(matched))
	for _, t := range matched {
		result = append(result, copyTenant(t))
	}
	return result, nil
}

func (s *InMemoryTenantStore) Count(ctx context.Context, filter *tenant.ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filtered(filter)), nil
}

// filtered must be called with the lock held. Results are ordered by ID so
// pagination is stable across calls.
func (s *InMemoryTenantStore) filtered(filter *tenant.ListFilter) []*tenant.Tenant {
	matched := make([]*tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if filter != nil && filter.ActiveOnly && !t.Active {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID < matched[j].ID
	})
	return matched
}

// Clear removes all tenants from the store
func (s *InMemoryTenantStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = make(map[string]*tenant.Tenant)
}

func copyTenant(t *tenant.Tenant) *tenant.Tenant {
	c := *t
	c.PlanStartedAt = copyTime(t.PlanStartedAt)
	c.PlanTrialEndsAt = copyTime(t.PlanTrialEndsAt)
	c.CurrentPeriodStart = copyTime(t.CurrentPeriodStart)
	c.CurrentPeriodEnd = copyTime(t.CurrentPeriodEnd)
	c.CancelledAt = copyTime(t.CancelledAt)
	c.LastBilledAt = copyTime(t.LastBilledAt)
	c.LastPaymentAttemptAt = copyTime(t.LastPaymentAttemptAt)
	c.PaymentRetryUntil = copyTime(t.PaymentRetryUntil)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
