package setuplog

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a run does not exist within the requesting
// tenant's scope. A run owned by another tenant is indistinguishable from a
// missing one.
var ErrNotFound = errors.New("setuplog: run not found")

// ErrRunInFlight is returned by Create when a non-terminal run already
// exists for the same (tenant, staff) pair. Backed by a storage-level
// uniqueness constraint, so concurrent duplicate triggers collapse to a
// single winner.
var ErrRunInFlight = errors.New("setuplog: non-terminal run already exists for staff")

// ListFilter narrows and paginates tenant-scoped run listings.
type ListFilter struct {
	Status      Status // zero value: all statuses
	TriggeredBy string // zero value: all actors
	Page        int    // 1-based; values < 1 mean page 1
	PerPage     int    // values < 1 fall back to a store default
}

// Statistics is the per-tenant outcome breakdown.
type Statistics struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"byStatus"`
}

// Store is the port the orchestrator and query surface depend on. All
// operations except Create are tenant-scoped; cross-tenant access behaves as
// not-found.
//
// The orchestrator owns the run's Status/Steps/Errors content; the store
// persists what it is given. MarkFailed and MarkRolledBack recompute the
// terminal status from the step list via DeriveStatus rather than trusting
// the caller.
type Store interface {
	// Create persists a new PENDING run. Returns ErrRunInFlight if a
	// non-terminal run exists for the same staff member.
	Create(ctx context.Context, run *SetupRun) error

	FindByID(ctx context.Context, tenantID, id string) (*SetupRun, error)
	FindByStaffID(ctx context.Context, tenantID, staffID string) ([]*SetupRun, error)

	// ExistsForStaff reports whether a non-terminal run exists for the
	// staff member. Advisory fast-path only; Create is the authoritative
	// guard.
	ExistsForStaff(ctx context.Context, tenantID, staffID string) (bool, error)

	MarkInProgress(ctx context.Context, tenantID, id string) error

	// SaveProgress persists the run's step list, errors and summary fields
	// after each step transition.
	SaveProgress(ctx context.Context, run *SetupRun) error

	MarkCompleted(ctx context.Context, tenantID, id string, summary Summary) error

	// MarkFailed records a terminal failure; the stored status is FAILED or
	// PARTIAL depending on DeriveStatus(steps).
	MarkFailed(ctx context.Context, tenantID, id string, steps []StepRecord, errs []SetupError) error

	// MarkRolledBack records a fully compensated terminal state.
	MarkRolledBack(ctx context.Context, tenantID, id string, steps []StepRecord, errs []SetupError) error

	FindPendingSetups(ctx context.Context, tenantID string) ([]*SetupRun, error)
	FindFailedSetups(ctx context.Context, tenantID string) ([]*SetupRun, error)

	List(ctx context.Context, tenantID string, filter ListFilter) ([]*SetupRun, int, error)
	GetStatistics(ctx context.Context, tenantID string) (*Statistics, error)
}
