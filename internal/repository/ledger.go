package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/renewd/renewd/internal/domain/ledger"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) ledger.Repository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Create(ctx context.Context, entry *ledger.Entry) error {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return ierr.WithError(err).
			WithHint("Writes require a tenant-scoped context").
			Mark(ierr.ErrValidation)
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("A ledger entry with this ID already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to write ledger entry").
			Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *ledgerRepository) Get(ctx context.Context, id string) (*ledger.Entry, error) {
	var entry ledger.Entry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewErrorf("ledger entry %s not found", id).
				WithHint("Ledger entry not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to load ledger entry").
			Mark(ierr.ErrSystem)
	}
	return &entry, nil
}

func (r *ledgerRepository) ListByTenant(ctx context.Context, tenantID string) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("billed_at").
		Find(&entries).Error
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list ledger entries").
			Mark(ierr.ErrSystem)
	}
	return entries, nil
}
