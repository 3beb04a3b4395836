package staff

import (
	"context"
	"sync"
)

// Ensure MemoryDirectory implements the port at compile time.
var _ Directory = (*MemoryDirectory)(nil)

// MemoryDirectory is an in-memory Directory for local development and tests.
// The production deployment resolves staff from the main platform database.
type MemoryDirectory struct {
	mu      sync.RWMutex
	members map[string]*Member // keyed by tenantID + "/" + staffID
}

// NewMemoryDirectory returns an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{members: make(map[string]*Member)}
}

// Add registers (or replaces) a staff member.
func (d *MemoryDirectory) Add(m *Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.TenantID+"/"+m.ID] = m
}

// GetStaff returns the member scoped to the tenant, or ErrNotFound.
func (d *MemoryDirectory) GetStaff(ctx context.Context, tenantID, staffID string) (*Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.members[tenantID+"/"+staffID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}
