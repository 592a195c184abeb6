package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/renewd/renewd/internal/domain/tenant"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

type tenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) tenant.Repository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return ierr.WithError(err).
			WithHint("Writes require a tenant-scoped context").
			Mark(ierr.ErrValidation)
	}

	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ierr.WithError(err).
				WithHint("A tenant with this ID already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create tenant").
			Mark(ierr.ErrSystem)
	}
	return nil
}

func (r *tenantRepository) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierr.NewErrorf("tenant %s not found", id).
				WithHint("Tenant not found").
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to load tenant").
			Mark(ierr.ErrSystem)
	}
	return &t, nil
}

// Update writes the whole record guarded on the version the caller read; a
// zero row count means another writer got there first.
func (r *tenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	if err := types.ValidateTenantContext(ctx); err != nil {
		return ierr.WithError(err).
			WithHint("Writes require a tenant-scoped context").
			Mark(ierr.ErrValidation)
	}

	updated := *t
	updated.Version = t.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&tenant.Tenant{}).
		Where("id = ? AND version = ?", t.ID, t.Version).
		Select("*").
		Omit("id", "created_at", "created_by").
		Updates(&updated)
	if res.Error != nil {
		return ierr.WithError(res.Error).
			WithHint("Failed to update tenant").
			Mark(ierr.ErrSystem)
	}
	if res.RowsAffected == 0 {
		return ierr.NewErrorf("tenant %s version mismatch at %d", t.ID, t.Version).
			WithHint("The tenant was modified concurrently, retry the operation").
			Mark(ierr.ErrVersionConflict)
	}

	t.Version = updated.Version
	t.UpdatedAt = updated.UpdatedAt
	return nil
}

func (r *tenantRepository) List(ctx context.Context, filter *tenant.ListFilter) ([]*tenant.Tenant, error) {
	var tenants []*tenant.Tenant
	if err := r.applyFilter(r.db.WithContext(ctx), filter, true).Find(&tenants).Error; err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list tenants").
			Mark(ierr.ErrSystem)
	}
	return tenants, nil
}

func (r *tenantRepository) Count(ctx context.Context, filter *tenant.ListFilter) (int, error) {
	var count int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&tenant.Tenant{}), filter, false).Count(&count).Error; err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count tenants").
			Mark(ierr.ErrSystem)
	}
	return int(count), nil
}

func (r *tenantRepository) applyFilter(q *gorm.DB, filter *tenant.ListFilter, paginate bool) *gorm.DB {
	if filter == nil {
		return q.Order("id")
	}
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if paginate {
		q = q.Order("id")
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
	}
	return q
}
