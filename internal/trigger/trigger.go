// Package trigger starts a provisioning run whenever a staff-created event
// arrives. Events flow through a buffered channel consumed by a single
// worker, so runs for different staff members are serialized through one
// goroutine per Trigger while the idempotency guard collapses duplicate
// deliveries of the same event.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/careops/staff-provisioning/internal/coordinator"
	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
)

// StaffCreated is the inbound domain event. Delivery may be at-least-once;
// idempotency relies on the Setup Log Store's guard, never on the transport.
type StaffCreated struct {
	TenantID    string `json:"tenantId"`
	StaffID     string `json:"staffId"`
	TriggeredBy string `json:"triggeredBy"`
}

// Trigger consumes StaffCreated events and starts pipeline runs.
type Trigger struct {
	pipeline *coordinator.Pipeline
	store    setuplog.Store
	events   chan StaffCreated
}

// New builds a trigger with the given event buffer size.
func New(pipeline *coordinator.Pipeline, store setuplog.Store, buffer int) *Trigger {
	if buffer < 1 {
		buffer = 64
	}
	return &Trigger{
		pipeline: pipeline,
		store:    store,
		events:   make(chan StaffCreated, buffer),
	}
}

// Enqueue submits an event for processing. It blocks when the buffer is
// full and fails only when ctx is done.
func (t *Trigger) Enqueue(ctx context.Context, evt StaffCreated) error {
	select {
	case t.events <- evt:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("trigger: enqueue staff %s: %w", evt.StaffID, ctx.Err())
	}
}

// Run consumes events until ctx is cancelled. Call it in its own goroutine.
func (t *Trigger) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-t.events:
			t.handle(ctx, evt)
		}
	}
}

func (t *Trigger) handle(ctx context.Context, evt StaffCreated) {
	// Fast-path reject for redelivered events. Advisory only: the store's
	// uniqueness constraint inside Start is what actually closes the race.
	exists, err := t.store.ExistsForStaff(ctx, evt.TenantID, evt.StaffID)
	if err != nil {
		slog.ErrorContext(ctx, "in-flight check failed, dropping event for redelivery",
			"tenant_id", evt.TenantID, "staff_id", evt.StaffID, "error", err)
		return
	}
	if exists {
		slog.InfoContext(ctx, "provisioning already in flight, ignoring event",
			"tenant_id", evt.TenantID, "staff_id", evt.StaffID)
		return
	}

	run, err := t.pipeline.Start(ctx, evt.TenantID, evt.StaffID, evt.TriggeredBy)
	switch {
	case errors.Is(err, setuplog.ErrRunInFlight):
		slog.InfoContext(ctx, "duplicate trigger lost the guard race, ignoring",
			"tenant_id", evt.TenantID, "staff_id", evt.StaffID)
	case err != nil:
		// Store or staff-resolution failure. Redelivery/backoff is the
		// event source's policy, not ours.
		slog.ErrorContext(ctx, "provisioning run could not finish cleanly",
			"tenant_id", evt.TenantID, "staff_id", evt.StaffID, "error", err)
	default:
		slog.InfoContext(ctx, "provisioning run finished",
			"tenant_id", evt.TenantID, "staff_id", evt.StaffID,
			"run_id", run.ID, "status", run.Status)
	}
}
