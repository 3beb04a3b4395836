package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
	"github.com/careops/staff-provisioning/internal/payroll"
	"github.com/careops/staff-provisioning/internal/rules"
)

// DefaultSteps returns the provisioning pipeline in its fixed execution
// order. The list is constructed statically; there is no runtime step
// discovery.
func DefaultSteps(client payroll.Client) []Step {
	return []Step{
		NewCreateEmployeeStep(client),
		NewAssignProfileStep(client),
		NewSetupLeaveStep(client),
		NewConfigureTaxStep(client),
		NewAddCalculationsStep(client),
		NewVerifySetupStep(client),
		NewSendNotificationStep(client),
	}
}

// --- CreateEmployeeStep ---

// CreateEmployeeStep creates the employee record on the payroll provider.
// This is the step every later step depends on: its output is the external
// employee id.
type CreateEmployeeStep struct {
	client payroll.Client
}

func NewCreateEmployeeStep(client payroll.Client) *CreateEmployeeStep {
	return &CreateEmployeeStep{client: client}
}

func (s *CreateEmployeeStep) Kind() setuplog.StepKind { return setuplog.StepCreateEmployee }
func (s *CreateEmployeeStep) CanRollback() bool       { return true }

func (s *CreateEmployeeStep) Execute(ctx context.Context, rc RunContext) (StepOutput, error) {
	created, err := s.client.CreateEmployee(ctx, rc.TenantID, payroll.NewEmployee{
		StaffID:       rc.Staff.ID,
		FirstName:     rc.Staff.FirstName,
		LastName:      rc.Staff.LastName,
		Email:         rc.Staff.Email,
		IDNumber:      rc.Staff.IDNumber,
		TaxNumber:     rc.Staff.TaxNumber,
		StartDate:     rc.Staff.StartDate,
		MonthlySalary: rc.Staff.MonthlySalary,
	})
	if err != nil {
		return StepOutput{}, fmt.Errorf("create employee for staff %s: %w", rc.StaffID, err)
	}

	return StepOutput{
		ExternalEmployeeID: created.EmployeeID,
		PayrollNumber:      created.PayrollNumber,
		Details: map[string]any{
			"externalEmployeeId": created.EmployeeID,
			"payrollNumber":      created.PayrollNumber,
		},
		RollbackData: setuplog.RollbackData{
			"externalEmployeeId": created.EmployeeID,
		},
	}, nil
}

func (s *CreateEmployeeStep) Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error {
	employeeID := stringField(data, "externalEmployeeId", rc.ExternalEmployeeID)
	if employeeID == "" {
		return fmt.Errorf("rollback create employee: no external employee id recorded")
	}

	err := s.client.DeleteEmployee(ctx, rc.TenantID, employeeID)
	if err != nil && !payroll.IsNotFound(err) {
		return fmt.Errorf("delete employee %s: %w", employeeID, err)
	}
	return nil
}

// --- AssignProfileStep ---

// AssignProfileStep selects the pay profile for the staff member and assigns
// it on the provider.
type AssignProfileStep struct {
	client payroll.Client
}

func NewAssignProfileStep(client payroll.Client) *AssignProfileStep {
	return &AssignProfileStep{client: client}
}

func (s *AssignProfileStep) Kind() setuplog.StepKind { return setuplog.StepAssignProfile }
func (s *AssignProfileStep) CanRollback() bool       { return true }

func (s *AssignProfileStep) Execute(ctx context.Context, rc RunContext) (StepOutput, error) {
	profileID := rules.SelectProfile(rc.Staff)

	if err := s.client.AssignProfile(ctx, rc.TenantID, rc.ExternalEmployeeID, string(profileID)); err != nil {
		return StepOutput{}, fmt.Errorf("assign profile %s: %w", profileID, err)
	}

	return StepOutput{
		ProfileID: profileID,
		Details:   map[string]any{"profileId": string(profileID)},
		RollbackData: setuplog.RollbackData{
			"externalEmployeeId": rc.ExternalEmployeeID,
			"profileId":          string(profileID),
		},
	}, nil
}

func (s *AssignProfileStep) Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error {
	employeeID := stringField(data, "externalEmployeeId", rc.ExternalEmployeeID)

	err := s.client.ClearProfile(ctx, rc.TenantID, employeeID)
	if err != nil && !payroll.IsNotFound(err) {
		return fmt.Errorf("clear profile on employee %s: %w", employeeID, err)
	}
	return nil
}

// --- SetupLeaveStep ---

// SetupLeaveStep writes the initial leave entitlement. Leave balances are
// overwritten wholesale by the provider on the next write, so there is no
// external record to compensate.
type SetupLeaveStep struct {
	client payroll.Client
}

func NewSetupLeaveStep(client payroll.Client) *SetupLeaveStep {
	return &SetupLeaveStep{client: client}
}

func (s *SetupLeaveStep) Kind() setuplog.StepKind { return setuplog.StepSetupLeave }
func (s *SetupLeaveStep) CanRollback() bool       { return false }

func (s *SetupLeaveStep) Execute(ctx context.Context, rc RunContext) (StepOutput, error) {
	grant := rules.CalculateInitialLeave(rc.Staff.StartDate, rc.Staff.EmploymentType)

	err := s.client.SetLeave(ctx, rc.TenantID, rc.ExternalEmployeeID, payroll.LeaveSettings{
		AnnualDays:               grant.AnnualDays,
		SickCycleDays:            grant.SickCycleDays,
		SickCycleMonths:          grant.SickCycleMonths,
		FamilyResponsibilityDays: grant.FamilyResponsibilityDays,
		CycleStart:               grant.CycleStart,
	})
	if err != nil {
		return StepOutput{}, fmt.Errorf("set leave: %w", err)
	}

	return StepOutput{
		Leave: &grant,
		Details: map[string]any{
			"annualDays":    grant.AnnualDays,
			"sickCycleDays": grant.SickCycleDays,
		},
	}, nil
}

func (s *SetupLeaveStep) Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error {
	return nil
}

// --- ConfigureTaxStep ---

// ConfigureTaxStep registers statutory tax details and records the
// provider's tax reference.
type ConfigureTaxStep struct {
	client payroll.Client
}

func NewConfigureTaxStep(client payroll.Client) *ConfigureTaxStep {
	return &ConfigureTaxStep{client: client}
}

func (s *ConfigureTaxStep) Kind() setuplog.StepKind { return setuplog.StepConfigureTax }
func (s *ConfigureTaxStep) CanRollback() bool       { return false }

func (s *ConfigureTaxStep) Execute(ctx context.Context, rc RunContext) (StepOutput, error) {
	ref, err := s.client.ConfigureTax(ctx, rc.TenantID, rc.ExternalEmployeeID, payroll.TaxSettings{
		TaxNumber: rc.Staff.TaxNumber,
	})
	if err != nil {
		return StepOutput{}, fmt.Errorf("configure tax: %w", err)
	}

	return StepOutput{
		TaxReference: ref,
		Details:      map[string]any{"taxReference": ref},
	}, nil
}

func (s *ConfigureTaxStep) Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error {
	return nil
}

// --- AddCalculationsStep ---

// AddCalculationsStep creates the standard recurring calculation items for
// the employee. Each item is an external record, so the step is
// rollback-capable and records every created item id.
type AddCalculationsStep struct {
	client payroll.Client
}

func NewAddCalculationsStep(client payroll.Client) *AddCalculationsStep {
	return &AddCalculationsStep{client: client}
}

func (s *AddCalculationsStep) Kind() setuplog.StepKind { return setuplog.StepAddCalculations }
func (s *AddCalculationsStep) CanRollback() bool       { return true }

// standardItems returns the calculation lines every provisioned employee
// starts with.
func standardItems(rc RunContext) []payroll.CalculationItem {
	return []payroll.CalculationItem{
		{Code: "BASIC", Description: "Basic salary", Amount: rc.Staff.MonthlySalary},
		{Code: "UIF", Description: "UIF contribution", Amount: rc.Staff.MonthlySalary * 0.01},
		{Code: "PENSION", Description: "Pension fund", Amount: rc.Staff.MonthlySalary * 0.075},
	}
}

func (s *AddCalculationsStep) Execute(ctx context.Context, rc RunContext) (StepOutput, error) {
	items := standardItems(rc)

	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := s.client.AddCalculation(ctx, rc.TenantID, rc.ExternalEmployeeID, item)
		if err != nil {
			// Remove already-created items so a failed step leaves no
			// stray external records for compensation to miss.
			s.removeAll(ctx, rc, ids)
			return StepOutput{}, fmt.Errorf("add calculation %s: %w", item.Code, err)
		}
		ids = append(ids, id)
	}

	return StepOutput{
		CalculationIDs: ids,
		Details: map[string]any{
			"calculationIds": ids,
			"count":          len(ids),
		},
		RollbackData: setuplog.RollbackData{
			"externalEmployeeId": rc.ExternalEmployeeID,
			"calculationIds":     ids,
		},
	}, nil
}

func (s *AddCalculationsStep) Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error {
	employeeID := stringField(data, "externalEmployeeId", rc.ExternalEmployeeID)

	ids := stringSliceField(data, "calculationIds")
	if len(ids) == 0 {
		ids = rc.CalculationIDs
	}

	var firstErr error
	for _, id := range ids {
		err := s.client.RemoveCalculation(ctx, rc.TenantID, employeeID, id)
		if err != nil && !payroll.IsNotFound(err) && firstErr == nil {
			firstErr = fmt.Errorf("remove calculation %s: %w", id, err)
		}
	}
	return firstErr
}

func (s *AddCalculationsStep) removeAll(ctx context.Context, rc RunContext, ids []string) {
	for _, id := range ids {
		_ = s.client.RemoveCalculation(ctx, rc.TenantID, rc.ExternalEmployeeID, id)
	}
}

// --- VerifySetupStep ---

// VerifySetupStep asks the provider for a consistency report over the
// provisioned employee. Read-only; nothing to compensate.
type VerifySetupStep struct {
	client payroll.Client
}

func NewVerifySetupStep(client payroll.Client) *VerifySetupStep {
	return &VerifySetupStep{client: client}
}

func (s *VerifySetupStep) Kind() setuplog.StepKind { return setuplog.StepVerifySetup }
func (s *VerifySetupStep) CanRollback() bool       { return false }

func (s *VerifySetupStep) Execute(ctx context.Context, rc RunContext) (StepOutput, error) {
	report, err := s.client.VerifyEmployee(ctx, rc.TenantID, rc.ExternalEmployeeID)
	if err != nil {
		return StepOutput{}, fmt.Errorf("verify employee %s: %w", rc.ExternalEmployeeID, err)
	}
	if !report.Complete {
		return StepOutput{}, fmt.Errorf("employee %s setup incomplete: missing %v", rc.ExternalEmployeeID, report.Missing)
	}

	return StepOutput{
		Verified: true,
		Details:  map[string]any{"complete": true},
	}, nil
}

func (s *VerifySetupStep) Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error {
	return nil
}

// --- SendNotificationStep ---

// SendNotificationStep sends the welcome notification. A sent message cannot
// be unsent, and it is also the last step, so it is not rollback-capable.
type SendNotificationStep struct {
	client payroll.Client
}

func NewSendNotificationStep(client payroll.Client) *SendNotificationStep {
	return &SendNotificationStep{client: client}
}

func (s *SendNotificationStep) Kind() setuplog.StepKind { return setuplog.StepSendNotification }
func (s *SendNotificationStep) CanRollback() bool       { return false }

func (s *SendNotificationStep) Execute(ctx context.Context, rc RunContext) (StepOutput, error) {
	err := s.client.SendNotification(ctx, rc.TenantID, rc.ExternalEmployeeID, payroll.Notification{
		Email:   rc.Staff.Email,
		Subject: "Your payroll profile is ready",
		Body: fmt.Sprintf(
			"Hi %s, your payroll setup is complete. Payroll number: %s. Start date: %s.",
			rc.Staff.FirstName, rc.PayrollNumber, rc.Staff.StartDate.Format("2 January 2006"),
		),
	})
	if err != nil {
		return StepOutput{}, fmt.Errorf("send notification: %w", err)
	}

	return StepOutput{
		Details: map[string]any{"notifiedAt": time.Now().UTC().Format(time.RFC3339)},
	}, nil
}

func (s *SendNotificationStep) Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error {
	return nil
}

// stringField reads a string out of rollback data, falling back to the run
// context value when the recorded payload lacks the key (e.g. a legacy row).
func stringField(data setuplog.RollbackData, key, fallback string) string {
	if v, ok := data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// stringSliceField reads a string slice out of rollback data. JSON
// round-tripping turns []string into []any, so both shapes are accepted.
func stringSliceField(data setuplog.RollbackData, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
