package trigger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/staff-provisioning/internal/coordinator"
	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
	setuplogsqlite "github.com/careops/staff-provisioning/internal/coordinator/setuplog/sqlite"
	"github.com/careops/staff-provisioning/internal/payroll"
	"github.com/careops/staff-provisioning/internal/staff"
)

func newTestTrigger(t *testing.T) (*Trigger, setuplog.Store) {
	t.Helper()

	store, err := setuplogsqlite.Open(filepath.Join(t.TempDir(), "setuplog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	dir := staff.NewMemoryDirectory()
	dir.Add(&staff.Member{
		ID:             "staff-1",
		TenantID:       "tenant-a",
		FirstName:      "Sipho",
		LastName:       "Dlamini",
		Email:          "sipho@example.org",
		Position:       staff.PositionAdmin,
		EmploymentType: staff.FullTime,
		StartDate:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		MonthlySalary:  16000,
	})

	pipeline := coordinator.NewPipeline(store, dir, coordinator.DefaultSteps(payroll.NewFake()))
	return New(pipeline, store, 8), store
}

func TestHandleStartsRun(t *testing.T) {
	trig, store := newTestTrigger(t)
	ctx := context.Background()

	trig.handle(ctx, StaffCreated{TenantID: "tenant-a", StaffID: "staff-1", TriggeredBy: "event:staff-created"})

	runs, err := store.FindByStaffID(ctx, "tenant-a", "staff-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, setuplog.StatusCompleted, runs[0].Status)
	assert.Equal(t, "event:staff-created", runs[0].TriggeredBy)
}

func TestHandleIgnoresRedeliveryWhileInFlight(t *testing.T) {
	trig, store := newTestTrigger(t)
	ctx := context.Background()

	// Simulate an earlier delivery that is still running.
	existing := setuplog.NewRun(ctx, "tenant-a", "staff-1", "event:staff-created", nil)
	require.NoError(t, store.Create(ctx, existing))

	trig.handle(ctx, StaffCreated{TenantID: "tenant-a", StaffID: "staff-1", TriggeredBy: "event:staff-created"})

	runs, err := store.FindByStaffID(ctx, "tenant-a", "staff-1")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestHandleAllowsRetryAfterTerminalRun(t *testing.T) {
	trig, store := newTestTrigger(t)
	ctx := context.Background()

	trig.handle(ctx, StaffCreated{TenantID: "tenant-a", StaffID: "staff-1", TriggeredBy: "event:staff-created"})
	trig.handle(ctx, StaffCreated{TenantID: "tenant-a", StaffID: "staff-1", TriggeredBy: "manual:retry"})

	// The first run completed, so the second event starts a fresh run.
	runs, err := store.FindByStaffID(ctx, "tenant-a", "staff-1")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunConsumesEnqueuedEvents(t *testing.T) {
	trig, store := newTestTrigger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trig.Run(ctx)

	require.NoError(t, trig.Enqueue(ctx, StaffCreated{TenantID: "tenant-a", StaffID: "staff-1", TriggeredBy: "event:staff-created"}))

	require.Eventually(t, func() bool {
		runs, err := store.FindByStaffID(context.Background(), "tenant-a", "staff-1")
		return err == nil && len(runs) == 1 && runs[0].Status == setuplog.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEnqueueFailsOnCancelledContext(t *testing.T) {
	trig, _ := newTestTrigger(t)

	// Fill the buffer so the send blocks, then cancel.
	full := New(trig.pipeline, trig.store, 1)
	require.NoError(t, full.Enqueue(context.Background(), StaffCreated{StaffID: "a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := full.Enqueue(ctx, StaffCreated{StaffID: "b"})
	require.ErrorIs(t, err, context.Canceled)
}
