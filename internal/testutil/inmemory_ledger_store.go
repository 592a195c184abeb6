package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/renewd/renewd/internal/domain/ledger"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

// InMemoryLedgerStore provides an in-memory implementation of
// ledger.Repository. Entries are append-only, same as the real store.
type InMemoryLedgerStore struct {
	mu      sync.RWMutex
	entries map[string]*ledger.Entry
}

func NewInMemoryLedgerStore() *InMemoryLedgerStore {
	return &InMemoryLedgerStore{
		entries: make(map[string]*ledger.Entry),
	}
}

func (s *InMemoryLedgerStore) Create(ctx context.Context, entry *ledger.Entry) error {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return ierr.WithError(err).
			WithHint("Writes require a tenant-scoped context").
			Mark(ierr.ErrValidation)
	}
	if entry == nil {
		return ierr.NewError("ledger entry cannot be nil").
			WithHint("Ledger entry cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.ID]; ok {
		return ierr.NewErrorf("ledger entry %s already exists", entry.ID).
			WithHint("A ledger entry with this ID already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}

func (s *InMemoryLedgerStore) Get(ctx context.Context, id string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ierr.NewErrorf("ledger entry %s not found", id).
			WithHint("Ledger entry not found").
			Mark(ierr.ErrNotFound)
	}

	copied := *entry
	return &copied, nil
}

func (s *InMemoryLedgerStore) ListByTenant(ctx context.Context, tenantID string) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ledger.Entry, 0)
	for _, entry := range s.entries {
		if entry.TenantID != tenantID {
			continue
		}
		copied := *entry
		result = append(result, &copied)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BilledAt.Before(result[j].BilledAt)
	})
	return result, nil
}

// Clear removes all entries from the store
func (s *InMemoryLedgerStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*ledger.Entry)
}
