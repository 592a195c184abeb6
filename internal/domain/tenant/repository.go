package tenant

import (
	"context"
)

// ListFilter narrows tenant listings for the billing driver
type ListFilter struct {
	// ActiveOnly keeps only tenants whose account operates at all
	ActiveOnly bool
	// Limit and Offset page through the candidate set
	Limit  int
	Offset int
}

// Repository provides access to the tenant subscription store.
// Update is version-guarded: it must reject a write whose Version does not
// match the stored record and bump the version on success.
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	List(ctx context.Context, filter *ListFilter) ([]*Tenant, error)
	Count(ctx context.Context, filter *ListFilter) (int, error)
}
