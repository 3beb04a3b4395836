package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/careops/staff-provisioning/internal/staff"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateInitialLeave(t *testing.T) {
	tests := []struct {
		name       string
		start      time.Time
		employment staff.EmploymentType
		wantAnnual float64
	}{
		{"full time january gets the full year", date(2026, time.January, 5), staff.FullTime, 15},
		{"full time february", date(2026, time.February, 1), staff.FullTime, 14},   // 15 * 11/12 rounded to half days
		{"full time mid year", date(2026, time.July, 1), staff.FullTime, 7.5},      // exactly half the year
		{"full time december", date(2026, time.December, 15), staff.FullTime, 1.5}, // 1.25 rounds up
		{"part time january", date(2026, time.January, 20), staff.PartTime, 10},
		{"part time march", date(2026, time.March, 3), staff.PartTime, 8.5}, // 10 * 10/12 rounded to half days
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant := CalculateInitialLeave(tt.start, tt.employment)
			assert.Equal(t, tt.wantAnnual, grant.AnnualDays)
			assert.Equal(t, 36, grant.SickCycleMonths)
			assert.Equal(t, date(tt.start.Year(), time.January, 1), grant.CycleStart)
		})
	}
}

func TestCalculateInitialLeaveSickAndFamily(t *testing.T) {
	fullTime := CalculateInitialLeave(date(2026, time.April, 1), staff.FullTime)
	assert.Equal(t, 30, fullTime.SickCycleDays)
	assert.Equal(t, 3, fullTime.FamilyResponsibilityDays)

	partTime := CalculateInitialLeave(date(2026, time.April, 1), staff.PartTime)
	assert.Equal(t, 22, partTime.SickCycleDays)
	assert.Equal(t, 0, partTime.FamilyResponsibilityDays)
}

func TestCalculateInitialLeaveContract(t *testing.T) {
	grant := CalculateInitialLeave(date(2026, time.June, 1), staff.Contract)

	assert.Zero(t, grant.AnnualDays)
	assert.Zero(t, grant.SickCycleDays)
	assert.Zero(t, grant.FamilyResponsibilityDays)
	assert.Equal(t, 36, grant.SickCycleMonths)
	assert.Equal(t, date(2026, time.January, 1), grant.CycleStart)
}
