package staff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectory(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Add(&Member{ID: "staff-1", TenantID: "tenant-a", FirstName: "Lerato", LastName: "Molefe"})

	m, err := dir.GetStaff(context.Background(), "tenant-a", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "Lerato Molefe", m.FullName())

	// Lookups are tenant scoped.
	_, err = dir.GetStaff(context.Background(), "tenant-b", "staff-1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dir.GetStaff(context.Background(), "tenant-a", "staff-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDirectoryReturnsCopy(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Add(&Member{ID: "staff-1", TenantID: "tenant-a", FirstName: "Lerato"})

	m, err := dir.GetStaff(context.Background(), "tenant-a", "staff-1")
	require.NoError(t, err)
	m.FirstName = "changed"

	again, err := dir.GetStaff(context.Background(), "tenant-a", "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "Lerato", again.FirstName)
}
