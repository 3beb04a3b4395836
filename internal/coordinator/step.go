// Package coordinator runs the employee provisioning saga: an ordered,
// fixed list of steps executed against an accumulating run context, with
// durable per-step progress and reverse-order compensation of external side
// effects when a later step fails.
package coordinator

import (
	"context"

	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
	"github.com/careops/staff-provisioning/internal/rules"
)

// Step is one unit of the provisioning workflow.
//
// Execute must be side-effect-idempotent enough that re-invocation with the
// same context does not corrupt provider state; that is each step's business
// responsibility, not enforced here.
//
// Rollback is only invoked when the step previously completed and
// CanRollback is true. It must treat "already rolled back" provider
// responses as success so a repeated compensation pass stays safe.
type Step interface {
	Kind() setuplog.StepKind

	// CanRollback is fixed metadata: true only for steps that create
	// external records which a compensating call can remove.
	CanRollback() bool

	Execute(ctx context.Context, rc RunContext) (StepOutput, error)

	Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error
}

// StepOutput carries a completed step's results. Typed fields are merged
// into the next run context copy; Details is the free-form payload persisted
// on the step record; RollbackData is retained for compensation when the
// step is rollback-capable.
type StepOutput struct {
	ExternalEmployeeID string
	PayrollNumber      string
	ProfileID          rules.ProfileID
	Leave              *rules.LeaveGrant
	TaxReference       string
	CalculationIDs     []string
	Verified           bool

	Details      map[string]any
	RollbackData setuplog.RollbackData
}
