// Package rules holds the pure business functions behind the provisioning
// steps: payroll profile selection and initial leave calculation. No I/O,
// deterministic given inputs.
package rules

import "github.com/careops/staff-provisioning/internal/staff"

// ProfileID identifies a pay profile on the payroll provider side.
type ProfileID string

const (
	ProfilePrincipal         ProfileID = "principal"
	ProfileEducatorFullTime  ProfileID = "educator-full-time"
	ProfileEducatorPartTime  ProfileID = "educator-part-time"
	ProfileAssistant         ProfileID = "assistant"
	ProfileAdminFullTime     ProfileID = "admin-full-time"
	ProfileAdminPartTime     ProfileID = "admin-part-time"
	ProfileSupportStaff      ProfileID = "support-staff"
	ProfileContractor        ProfileID = "contractor"
	ProfileProvisional       ProfileID = "general-provisional"
)

// SelectProfile maps a staff member's position and employment type to the
// payroll profile used for pay runs. Total: unknown combinations fall back
// to the provisional profile so provisioning never stalls on a new role.
func SelectProfile(m *staff.Member) ProfileID {
	if m.EmploymentType == staff.Contract {
		return ProfileContractor
	}

	switch m.Position {
	case staff.PositionPrincipal:
		return ProfilePrincipal
	case staff.PositionTeacher:
		if m.EmploymentType == staff.PartTime {
			return ProfileEducatorPartTime
		}
		return ProfileEducatorFullTime
	case staff.PositionAssistant:
		return ProfileAssistant
	case staff.PositionAdmin:
		if m.EmploymentType == staff.PartTime {
			return ProfileAdminPartTime
		}
		return ProfileAdminFullTime
	case staff.PositionSupport:
		return ProfileSupportStaff
	default:
		return ProfileProvisional
	}
}
