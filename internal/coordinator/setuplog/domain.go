// Package setuplog defines the persisted run-state model for employee
// provisioning.
//
// One SetupRun row exists per provisioning attempt. Unlike an append-only
// event log, the row is updated in place after every step so the embedded
// step list is always the authoritative picture of how far the run got and
// which external side effects would need manual remediation if compensation
// fails. Two consumers rely on this:
//
//  1. Observability: back-office operators query runs by tenant and status
//     and can jump to the distributed trace via the trace_id column.
//
//  2. Remediation: a PARTIAL run retains rollbackData on every still-applied
//     step, which is the exact input needed to undo the external record by
//     hand (or by a future remediation job).
package setuplog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a provisioning run.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusPartial    Status = "PARTIAL"
	StatusRolledBack Status = "ROLLED_BACK"
)

// Terminal reports whether no further automatic transition can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartial, StatusRolledBack:
		return true
	}
	return false
}

// StepKind identifies one of the fixed provisioning steps.
type StepKind string

const (
	StepCreateEmployee   StepKind = "CREATE_EMPLOYEE"
	StepAssignProfile    StepKind = "ASSIGN_PROFILE"
	StepSetupLeave       StepKind = "SETUP_LEAVE"
	StepConfigureTax     StepKind = "CONFIGURE_TAX"
	StepAddCalculations  StepKind = "ADD_CALCULATIONS"
	StepVerifySetup      StepKind = "VERIFY_SETUP"
	StepSendNotification StepKind = "SEND_NOTIFICATION"
)

// StepStatus is the lifecycle state of a single step within a run.
type StepStatus string

const (
	StepPendingStatus    StepStatus = "PENDING"
	StepInProgressStatus StepStatus = "IN_PROGRESS"
	StepCompletedStatus  StepStatus = "COMPLETED"
	StepFailedStatus     StepStatus = "FAILED"
	StepSkippedStatus    StepStatus = "SKIPPED"
)

// RollbackData is the opaque payload a step records on completion so its
// external side effect can later be compensated, even across process
// restarts. Contents are step-specific; the orchestrator never inspects it.
type RollbackData map[string]any

// StepRecord is one entry in a run's ordered step list.
type StepRecord struct {
	Step        StepKind   `json:"step"`
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// DurationMs is completedAt - startedAt; nil until the step reaches
	// COMPLETED or FAILED.
	DurationMs *int64 `json:"durationMs,omitempty"`

	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`

	// CanRollback is fixed metadata copied from the step implementation.
	CanRollback  bool         `json:"canRollback"`
	RollbackData RollbackData `json:"rollbackData,omitempty"`

	// RolledBackAt is set when compensation of this step succeeded.
	// RollbackError is set when compensation was attempted and failed.
	// Both nil/empty on a COMPLETED step means compensation was never
	// attempted. These fields exist so the run status stays derivable
	// from the step list alone.
	RolledBackAt  *time.Time `json:"rolledBackAt,omitempty"`
	RollbackError string     `json:"rollbackError,omitempty"`
}

// Start transitions the record to IN_PROGRESS.
func (r *StepRecord) Start(now time.Time) {
	r.Status = StepInProgressStatus
	r.StartedAt = &now
}

// Complete transitions the record to COMPLETED and fixes its duration.
// rollbackData is only retained when the step is rollback-capable.
func (r *StepRecord) Complete(now time.Time, details map[string]any, rollbackData RollbackData) {
	r.Status = StepCompletedStatus
	r.CompletedAt = &now
	r.Details = details
	if r.CanRollback {
		r.RollbackData = rollbackData
	}
	r.fixDuration()
}

// Fail transitions the record to FAILED and fixes its duration.
func (r *StepRecord) Fail(now time.Time, msg string) {
	r.Status = StepFailedStatus
	r.CompletedAt = &now
	r.Error = msg
	r.fixDuration()
}

func (r *StepRecord) fixDuration() {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return
	}
	ms := r.CompletedAt.Sub(*r.StartedAt).Milliseconds()
	r.DurationMs = &ms
}

// RollbackErrorCodePrefix namespaces error codes produced during
// compensation so they are distinguishable from forward-execution failures.
const RollbackErrorCodePrefix = "ROLLBACK_"

// SetupError is one accumulated failure, either from forward execution or
// from compensation (ROLLBACK_* code namespace).
type SetupError struct {
	Step      StepKind       `json:"step"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// IsRollback reports whether this error was recorded during compensation.
func (e SetupError) IsRollback() bool {
	return len(e.Code) >= len(RollbackErrorCodePrefix) &&
		e.Code[:len(RollbackErrorCodePrefix)] == RollbackErrorCodePrefix
}

// StepPlan declares one step of a run up front: its identity and whether it
// is rollback-capable. The orchestrator builds the plan from its static step
// list before the first step executes.
type StepPlan struct {
	Kind        StepKind
	CanRollback bool
}

// SetupRun is the aggregate root: one row per provisioning attempt.
//
// The orchestrator is the only writer to Status, Steps and Errors; the store
// persists what it is given and enforces tenant scoping on reads.
type SetupRun struct {
	ID          string
	TenantID    string
	StaffID     string
	TriggeredBy string
	Status      Status

	// ExternalEmployeeID is set once CreateEmployee succeeds; empty before.
	ExternalEmployeeID string

	// Denormalized summaries mirroring step outcomes, indexed for querying
	// without deserializing the step list.
	ProfileAssigned   string
	LeaveInitialized  bool
	TaxConfigured     bool
	CalculationsAdded int

	Steps  []StepRecord
	Errors []SetupError

	// TraceID/SpanID correlate the run with the distributed trace that was
	// active when it was created.
	TraceID string
	SpanID  string

	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewRun creates a PENDING run with one PENDING StepRecord per planned step,
// capturing trace identifiers from the active span in ctx.
func NewRun(ctx context.Context, tenantID, staffID, triggeredBy string, plan []StepPlan) *SetupRun {
	ti := ExtractTraceInfo(ctx)

	steps := make([]StepRecord, len(plan))
	for i, p := range plan {
		steps[i] = StepRecord{
			Step:        p.Kind,
			Status:      StepPendingStatus,
			CanRollback: p.CanRollback,
		}
	}

	return &SetupRun{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		StaffID:     staffID,
		TriggeredBy: triggeredBy,
		Status:      StatusPending,
		Steps:       steps,
		TraceID:     ti.TraceID,
		SpanID:      ti.SpanID,
		StartedAt:   time.Now().UTC(),
	}
}

// Record returns the step record for the given kind, or nil if the run's
// plan does not include it.
func (r *SetupRun) Record(kind StepKind) *StepRecord {
	for i := range r.Steps {
		if r.Steps[i].Step == kind {
			return &r.Steps[i]
		}
	}
	return nil
}

// SkipRemaining marks every step still PENDING as SKIPPED. Called when
// forward execution halts so each record reaches a final step status.
func (r *SetupRun) SkipRemaining() {
	for i := range r.Steps {
		if r.Steps[i].Status == StepPendingStatus {
			r.Steps[i].Status = StepSkippedStatus
		}
	}
}

// AppendError records an accumulated failure on the run.
func (r *SetupRun) AppendError(e SetupError) {
	r.Errors = append(r.Errors, e)
}

// Summary carries the denormalized outcome fields written on completion.
type Summary struct {
	ExternalEmployeeID string
	ProfileAssigned    string
	LeaveInitialized   bool
	TaxConfigured      bool
	CalculationsAdded  int
}
