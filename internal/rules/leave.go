package rules

import (
	"math"
	"time"

	"github.com/careops/staff-provisioning/internal/staff"
)

// LeaveGrant is the initial leave entitlement written to the payroll
// provider for a new staff member.
type LeaveGrant struct {
	// AnnualDays is the annual leave available for the remainder of the
	// leave year, prorated from the start date in half-day increments.
	AnnualDays float64

	// SickCycleDays is the sick leave allocation for the current cycle.
	SickCycleDays int

	// SickCycleMonths is the length of the sick leave cycle.
	SickCycleMonths int

	// FamilyResponsibilityDays is the family responsibility allocation.
	FamilyResponsibilityDays int

	// CycleStart anchors the leave year: January 1st of the start year for
	// staff starting in-year.
	CycleStart time.Time
}

// Annual entitlement per employment type, in days per full leave year.
const (
	annualDaysFullTime = 15.0
	annualDaysPartTime = 10.0
)

// CalculateInitialLeave computes the initial leave grant for a staff member
// starting on startDate. Deterministic; the payroll provider takes over
// accrual once the grant is written.
//
// Contractors accrue leave per period worked rather than receiving an
// upfront grant, so their initial entitlement is zero across the board.
func CalculateInitialLeave(startDate time.Time, employmentType staff.EmploymentType) LeaveGrant {
	cycleStart := time.Date(startDate.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	if employmentType == staff.Contract {
		return LeaveGrant{SickCycleMonths: 36, CycleStart: cycleStart}
	}

	full := annualDaysFullTime
	sickDays := 30
	familyDays := 3
	if employmentType == staff.PartTime {
		full = annualDaysPartTime
		sickDays = 22
		familyDays = 0
	}

	// Months remaining in the leave year, counting the start month in full.
	remaining := 12 - int(startDate.Month()) + 1

	prorated := full * float64(remaining) / 12
	// Round to the nearest half day.
	prorated = math.Round(prorated*2) / 2

	return LeaveGrant{
		AnnualDays:               prorated,
		SickCycleDays:            sickDays,
		SickCycleMonths:          36,
		FamilyResponsibilityDays: familyDays,
		CycleStart:               cycleStart,
	}
}
