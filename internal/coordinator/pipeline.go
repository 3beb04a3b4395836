package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
	"github.com/careops/staff-provisioning/internal/payroll"
	"github.com/careops/staff-provisioning/internal/staff"
)

// Pipeline executes the provisioning steps in fixed order for one staff
// member, persisting run progress after every step transition and
// compensating already-applied external side effects when a step fails.
//
// Step and rollback failures are absorbed into the run's persisted state and
// never propagate to the caller. Only three things surface as errors from
// Start: the idempotency guard (setuplog.ErrRunInFlight), staff resolution
// failures, and Setup Log Store unavailability — the caller owns retry and
// alerting policy for those.
type Pipeline struct {
	store     setuplog.Store
	directory staff.Directory
	steps     []Step

	now func() time.Time
}

// NewPipeline builds a pipeline over the given static step list.
func NewPipeline(store setuplog.Store, directory staff.Directory, steps []Step) *Pipeline {
	return &Pipeline{
		store:     store,
		directory: directory,
		steps:     steps,
		now:       time.Now,
	}
}

func (p *Pipeline) plan() []setuplog.StepPlan {
	plan := make([]setuplog.StepPlan, len(p.steps))
	for i, s := range p.steps {
		plan[i] = setuplog.StepPlan{Kind: s.Kind(), CanRollback: s.CanRollback()}
	}
	return plan
}

// Start runs the full pipeline for the staff member and returns the run in
// its terminal state. A step failure does not produce an error here; inspect
// the returned run's Status.
func (p *Pipeline) Start(ctx context.Context, tenantID, staffID, triggeredBy string) (*setuplog.SetupRun, error) {
	member, err := p.directory.GetStaff(ctx, tenantID, staffID)
	if err != nil {
		return nil, fmt.Errorf("resolve staff %s: %w", staffID, err)
	}

	run := setuplog.NewRun(ctx, tenantID, staffID, triggeredBy, p.plan())

	// The store's uniqueness constraint is the authoritative idempotency
	// guard: under concurrent duplicate triggers exactly one Create wins.
	if err := p.store.Create(ctx, run); err != nil {
		if errors.Is(err, setuplog.ErrRunInFlight) {
			return nil, err
		}
		return nil, fmt.Errorf("create setup run: %w", err)
	}

	if err := p.store.MarkInProgress(ctx, tenantID, run.ID); err != nil {
		return run, fmt.Errorf("claim setup run %s: %w", run.ID, err)
	}
	run.Status = setuplog.StatusInProgress

	slog.InfoContext(ctx, "provisioning run started",
		"run_id", run.ID, "tenant_id", tenantID, "staff_id", staffID, "triggered_by", triggeredBy)

	rc := RunContext{
		TenantID:    tenantID,
		StaffID:     staffID,
		TriggeredBy: triggeredBy,
		Staff:       member,
	}

	rc, failed, err := p.runForward(ctx, run, rc)
	if err != nil {
		return run, err
	}

	if !failed {
		return run, p.finishCompleted(ctx, run)
	}

	p.compensate(ctx, run, rc)
	return run, p.finishFailed(ctx, run)
}

// runForward executes steps in order until one fails. The returned error is
// a store failure only.
func (p *Pipeline) runForward(ctx context.Context, run *setuplog.SetupRun, rc RunContext) (RunContext, bool, error) {
	for _, step := range p.steps {
		rec := run.Record(step.Kind())

		rec.Start(p.now().UTC())
		if err := p.store.SaveProgress(ctx, run); err != nil {
			return rc, false, fmt.Errorf("persist run %s: %w", run.ID, err)
		}

		slog.InfoContext(ctx, "executing step", "run_id", run.ID, "step", step.Kind())

		out, err := p.executeStep(ctx, step, rc)
		if err != nil {
			slog.ErrorContext(ctx, "step failed",
				"run_id", run.ID, "step", step.Kind(), "error", err)

			rec.Fail(p.now().UTC(), err.Error())
			run.AppendError(setuplog.SetupError{
				Step:      step.Kind(),
				Code:      failureCode(err),
				Message:   err.Error(),
				Timestamp: p.now().UTC(),
			})
			run.SkipRemaining()
			if perr := p.store.SaveProgress(ctx, run); perr != nil {
				return rc, true, fmt.Errorf("persist run %s: %w", run.ID, perr)
			}
			return rc, true, nil
		}

		rec.Complete(p.now().UTC(), out.Details, out.RollbackData)
		rc = rc.With(out)
		applySummary(run, out)

		if err := p.store.SaveProgress(ctx, run); err != nil {
			return rc, false, fmt.Errorf("persist run %s: %w", run.ID, err)
		}
	}
	return rc, false, nil
}

// executeStep invokes the step and converts panics into step failures so
// nothing escapes the orchestrator boundary.
func (p *Pipeline) executeStep(ctx context.Context, step Step, rc RunContext) (out StepOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", step.Kind(), r)
		}
	}()
	return step.Execute(ctx, rc)
}

// compensate rolls back COMPLETED, rollback-capable steps in reverse
// execution order. A rollback failure is recorded and does not prevent
// attempting rollback of earlier steps.
func (p *Pipeline) compensate(ctx context.Context, run *setuplog.SetupRun, rc RunContext) {
	for i := len(p.steps) - 1; i >= 0; i-- {
		step := p.steps[i]
		rec := run.Record(step.Kind())
		if rec.Status != setuplog.StepCompletedStatus || !step.CanRollback() {
			continue
		}

		slog.InfoContext(ctx, "compensating step", "run_id", run.ID, "step", step.Kind())

		if err := p.rollbackStep(ctx, step, rc, rec.RollbackData); err != nil {
			slog.ErrorContext(ctx, "rollback failed, run requires manual remediation",
				"run_id", run.ID, "step", step.Kind(), "error", err)

			rec.RollbackError = err.Error()
			run.AppendError(setuplog.SetupError{
				Step:      step.Kind(),
				Code:      rollbackFailureCode(err),
				Message:   err.Error(),
				Timestamp: p.now().UTC(),
			})
			continue
		}

		now := p.now().UTC()
		rec.RolledBackAt = &now
	}
}

func (p *Pipeline) rollbackStep(ctx context.Context, step Step, rc RunContext, data setuplog.RollbackData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollback of %s panicked: %v", step.Kind(), r)
		}
	}()
	return step.Rollback(ctx, rc, data)
}

func (p *Pipeline) finishCompleted(ctx context.Context, run *setuplog.SetupRun) error {
	now := p.now().UTC()
	run.CompletedAt = &now
	run.Status = p.terminalStatus(ctx, run, setuplog.StatusCompleted)

	summary := setuplog.Summary{
		ExternalEmployeeID: run.ExternalEmployeeID,
		ProfileAssigned:    run.ProfileAssigned,
		LeaveInitialized:   run.LeaveInitialized,
		TaxConfigured:      run.TaxConfigured,
		CalculationsAdded:  run.CalculationsAdded,
	}
	if err := p.store.MarkCompleted(ctx, run.TenantID, run.ID, summary); err != nil {
		return fmt.Errorf("persist completed run %s: %w", run.ID, err)
	}

	slog.InfoContext(ctx, "provisioning run completed",
		"run_id", run.ID, "staff_id", run.StaffID, "external_employee_id", run.ExternalEmployeeID)
	return nil
}

func (p *Pipeline) finishFailed(ctx context.Context, run *setuplog.SetupRun) error {
	now := p.now().UTC()
	run.CompletedAt = &now
	run.Status = p.terminalStatus(ctx, run, setuplog.DeriveStatus(run.Steps))

	var err error
	if run.Status == setuplog.StatusRolledBack {
		err = p.store.MarkRolledBack(ctx, run.TenantID, run.ID, run.Steps, run.Errors)
	} else {
		err = p.store.MarkFailed(ctx, run.TenantID, run.ID, run.Steps, run.Errors)
	}
	if err != nil {
		return fmt.Errorf("persist terminal run %s: %w", run.ID, err)
	}

	slog.WarnContext(ctx, "provisioning run ended without completing",
		"run_id", run.ID, "staff_id", run.StaffID, "status", run.Status)
	return nil
}

// terminalStatus cross-checks the orchestrator's bookkeeping against the
// pure derivation from the step list. The derived value always wins; a
// mismatch is a programming error worth a loud log line.
func (p *Pipeline) terminalStatus(ctx context.Context, run *setuplog.SetupRun, expected setuplog.Status) setuplog.Status {
	derived := setuplog.DeriveStatus(run.Steps)
	if derived != expected {
		slog.ErrorContext(ctx, "terminal status mismatch, using derived value",
			"run_id", run.ID, "expected", expected, "derived", derived)
	}
	return derived
}

// applySummary mirrors a completed step's output onto the run's denormalized
// summary fields.
func applySummary(run *setuplog.SetupRun, out StepOutput) {
	if out.ExternalEmployeeID != "" {
		run.ExternalEmployeeID = out.ExternalEmployeeID
	}
	if out.ProfileID != "" {
		run.ProfileAssigned = string(out.ProfileID)
	}
	if out.Leave != nil {
		run.LeaveInitialized = true
	}
	if out.TaxReference != "" {
		run.TaxConfigured = true
	}
	if len(out.CalculationIDs) > 0 {
		run.CalculationsAdded = len(out.CalculationIDs)
	}
}

// failureCode extracts a stable error code for a forward-execution failure.
func failureCode(err error) string {
	var pe *payroll.Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return "STEP_FAILED"
}

// rollbackFailureCode namespaces compensation failures so they are
// distinguishable from forward failures in the accumulated error list.
func rollbackFailureCode(err error) string {
	var pe *payroll.Error
	if errors.As(err, &pe) {
		return setuplog.RollbackErrorCodePrefix + pe.Code
	}
	return setuplog.RollbackErrorCodePrefix + "FAILED"
}
