package coordinator

import (
	"github.com/careops/staff-provisioning/internal/rules"
	"github.com/careops/staff-provisioning/internal/staff"
)

// RunContext is the state threaded through the pipeline. Steps receive it by
// value and never mutate it; the pipeline folds each step's output into a
// fresh copy with With, so every field is immutable after it is first
// written.
type RunContext struct {
	TenantID    string
	StaffID     string
	TriggeredBy string

	// Staff is the snapshot resolved at run start.
	Staff *staff.Member

	// ExternalEmployeeID becomes available to every step after
	// CreateEmployee completes.
	ExternalEmployeeID string
	PayrollNumber      string

	ProfileID      rules.ProfileID
	Leave          *rules.LeaveGrant
	TaxReference   string
	CalculationIDs []string
	Verified       bool
}

// With returns a copy of rc with the step output's non-zero fields applied.
func (rc RunContext) With(out StepOutput) RunContext {
	next := rc
	if out.ExternalEmployeeID != "" {
		next.ExternalEmployeeID = out.ExternalEmployeeID
	}
	if out.PayrollNumber != "" {
		next.PayrollNumber = out.PayrollNumber
	}
	if out.ProfileID != "" {
		next.ProfileID = out.ProfileID
	}
	if out.Leave != nil {
		next.Leave = out.Leave
	}
	if out.TaxReference != "" {
		next.TaxReference = out.TaxReference
	}
	if len(out.CalculationIDs) > 0 {
		next.CalculationIDs = out.CalculationIDs
	}
	if out.Verified {
		next.Verified = true
	}
	return next
}
