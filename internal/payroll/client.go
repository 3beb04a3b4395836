// Package payroll defines the port to the external payroll provider.
//
// The provider is an opaque, non-transactional SaaS system: every operation
// either succeeds or returns a typed *Error. The provisioning pipeline only
// classifies outcomes as success/failure and never interprets provider
// error codes beyond the not-found check used for idempotent rollback.
// Timeout and retry policy live in the concrete adapter, not in callers.
package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error is a typed failure returned by the provider.
type Error struct {
	// Code is the provider's machine-readable error code, e.g.
	// "EMPLOYEE_NOT_FOUND" or "VALIDATION_FAILED".
	Code string

	// Message is the provider's human-readable description.
	Message string

	// HTTPStatus is the transport status when the adapter is HTTP-based;
	// zero otherwise.
	HTTPStatus int
}

func (e *Error) Error() string {
	return fmt.Sprintf("payroll: %s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err indicates the target record no longer
// exists on the provider side. Rollbacks treat this as idempotent success:
// deleting an already-deleted employee must not fail the compensation pass.
func IsNotFound(err error) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.HTTPStatus == 404 || pe.Code == "NOT_FOUND" || pe.Code == "EMPLOYEE_NOT_FOUND"
}

// NewEmployee is the payload for creating the external employee record.
type NewEmployee struct {
	StaffID       string
	FirstName     string
	LastName      string
	Email         string
	IDNumber      string
	TaxNumber     string
	StartDate     time.Time
	MonthlySalary float64
}

// CreatedEmployee is the provider's identity for a created employee.
type CreatedEmployee struct {
	EmployeeID    string
	PayrollNumber string
}

// LeaveSettings configures the employee's initial leave entitlement.
type LeaveSettings struct {
	AnnualDays               float64
	SickCycleDays            int
	SickCycleMonths          int
	FamilyResponsibilityDays int
	CycleStart               time.Time
}

// TaxSettings configures statutory tax details.
type TaxSettings struct {
	TaxNumber string
	Directive string
}

// CalculationItem is one recurring payroll calculation line.
type CalculationItem struct {
	Code        string
	Description string
	Amount      float64
}

// VerificationReport is the provider's read-only consistency check over a
// provisioned employee.
type VerificationReport struct {
	Complete bool
	Missing  []string
}

// Notification is the welcome message sent once provisioning succeeds.
type Notification struct {
	Email   string
	Subject string
	Body    string
}

// Client exposes the per-step provider operations the pipeline needs.
// All operations are tenant-scoped because provider credentials are held
// per tenant.
type Client interface {
	CreateEmployee(ctx context.Context, tenantID string, emp NewEmployee) (*CreatedEmployee, error)
	DeleteEmployee(ctx context.Context, tenantID, employeeID string) error

	AssignProfile(ctx context.Context, tenantID, employeeID, profileID string) error
	ClearProfile(ctx context.Context, tenantID, employeeID string) error

	SetLeave(ctx context.Context, tenantID, employeeID string, leave LeaveSettings) error

	// ConfigureTax returns the provider's tax registration reference.
	ConfigureTax(ctx context.Context, tenantID, employeeID string, tax TaxSettings) (string, error)

	// AddCalculation returns the provider-side id of the created item.
	AddCalculation(ctx context.Context, tenantID, employeeID string, item CalculationItem) (string, error)
	RemoveCalculation(ctx context.Context, tenantID, employeeID, calculationID string) error

	VerifyEmployee(ctx context.Context, tenantID, employeeID string) (*VerificationReport, error)

	SendNotification(ctx context.Context, tenantID, employeeID string, n Notification) error
}
