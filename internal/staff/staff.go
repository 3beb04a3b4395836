// Package staff defines the staff member domain the provisioning pipeline
// reads from. The StaffCreated event carries only identifiers, so the
// pipeline resolves the full staff snapshot through the Directory port once
// at run start.
package staff

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no staff member exists for the given ids
// within the tenant's scope.
var ErrNotFound = errors.New("staff: member not found")

// EmploymentType classifies the employment contract.
type EmploymentType string

const (
	FullTime EmploymentType = "FULL_TIME"
	PartTime EmploymentType = "PART_TIME"
	Contract EmploymentType = "CONTRACT"
)

// Position enumerates the daycare roles the platform provisions.
type Position string

const (
	PositionPrincipal Position = "PRINCIPAL"
	PositionTeacher   Position = "TEACHER"
	PositionAssistant Position = "ASSISTANT"
	PositionAdmin     Position = "ADMIN"
	PositionSupport   Position = "SUPPORT"
)

// Member is the staff snapshot the provisioning steps work from.
type Member struct {
	ID             string
	TenantID       string
	FirstName      string
	LastName       string
	Email          string
	IDNumber       string
	TaxNumber      string
	Position       Position
	EmploymentType EmploymentType
	StartDate      time.Time
	MonthlySalary  float64
}

// FullName returns the display name used in provider payloads.
func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// Directory is the port through which the pipeline resolves staff members.
// Reads are tenant-scoped; a member owned by another tenant behaves as
// not-found.
type Directory interface {
	GetStaff(ctx context.Context, tenantID, staffID string) (*Member, error)
}
