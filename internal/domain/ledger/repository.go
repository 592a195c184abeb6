package ledger

import (
	"context"
)

// Repository is intentionally append-only: entries are immutable once written
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	Get(ctx context.Context, id string) (*Entry, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Entry, error)
}
