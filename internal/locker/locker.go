package locker

import "sync"

// TenantLocker hands out one mutex per tenant so a charge attempt and its
// state update run mutually exclusive with any tenant-initiated operation on
// the same tenant. Tenants stay independent of each other.
type TenantLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTenantLocker creates an empty keyed locker
func NewTenantLocker() *TenantLocker {
	return &TenantLocker{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the lock for a tenant, creating it on first use
func (l *TenantLocker) Lock(tenantID string) {
	l.forTenant(tenantID).Lock()
}

// Unlock releases the lock for a tenant
func (l *TenantLocker) Unlock(tenantID string) {
	l.forTenant(tenantID).Unlock()
}

func (l *TenantLocker) forTenant(tenantID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.locks[tenantID]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.locks[tenantID] = m
	return m
}
