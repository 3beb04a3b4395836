package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
	"github.com/careops/staff-provisioning/internal/payroll"
	"github.com/careops/staff-provisioning/internal/staff"
)

const (
	testTenant = "tenant-a"
	testStaff  = "staff-1"
)

func testDirectory() *staff.MemoryDirectory {
	dir := staff.NewMemoryDirectory()
	dir.Add(&staff.Member{
		ID:             testStaff,
		TenantID:       testTenant,
		FirstName:      "Thandi",
		LastName:       "Nkosi",
		Email:          "thandi@example.org",
		IDNumber:       "8802235800085",
		TaxNumber:      "2345678901",
		Position:       staff.PositionTeacher,
		EmploymentType: staff.FullTime,
		StartDate:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		MonthlySalary:  21000,
	})
	return dir
}

// startRealRun executes the full 7-step pipeline against the in-memory
// provider and store.
func startRealRun(t *testing.T, provider *payroll.Fake, store *fakeStore) (*setuplog.SetupRun, error) {
	t.Helper()
	p := NewPipeline(store, testDirectory(), DefaultSteps(provider))
	return p.Start(context.Background(), testTenant, testStaff, "event:staff-created")
}

// assertStatusInvariant checks the core invariant: the persisted status is
// always recomputable from the step list alone.
func assertStatusInvariant(t *testing.T, run *setuplog.SetupRun) {
	t.Helper()
	assert.Equal(t, setuplog.DeriveStatus(run.Steps), run.Status)
}

func TestPipelineAllStepsSucceed(t *testing.T) {
	provider := payroll.NewFake()
	store := newFakeStore()

	run, err := startRealRun(t, provider, store)
	require.NoError(t, err)

	assert.Equal(t, setuplog.StatusCompleted, run.Status)
	assertStatusInvariant(t, run)
	require.NotNil(t, run.CompletedAt)

	// Denormalized summary mirrors the step outcomes.
	assert.NotEmpty(t, run.ExternalEmployeeID)
	assert.Equal(t, "educator-full-time", run.ProfileAssigned)
	assert.True(t, run.LeaveInitialized)
	assert.True(t, run.TaxConfigured)
	assert.Equal(t, 3, run.CalculationsAdded)

	for _, rec := range run.Steps {
		assert.Equal(t, setuplog.StepCompletedStatus, rec.Status, "step %s", rec.Step)
		require.NotNil(t, rec.DurationMs, "step %s", rec.Step)
		assert.GreaterOrEqual(t, *rec.DurationMs, int64(0))
	}

	// AssignProfile could only succeed if the external employee id from
	// CreateEmployee reached it through the run context.
	_, exists := provider.Employee(run.ExternalEmployeeID)
	assert.True(t, exists)
	assert.Equal(t, 3, provider.CalculationCount(run.ExternalEmployeeID))
	require.Len(t, provider.Notifications, 1)
	assert.Equal(t, "thandi@example.org", provider.Notifications[0].Email)

	// The store saw the terminal state.
	stored, err := store.FindByID(context.Background(), testTenant, run.ID)
	require.NoError(t, err)
	assert.Equal(t, setuplog.StatusCompleted, stored.Status)
}

func TestPipelineRollsBackOnFailure(t *testing.T) {
	provider := payroll.NewFake()
	provider.FailOn["AssignProfile"] = &payroll.Error{Code: "PROFILE_REJECTED", Message: "profile not licensed", HTTPStatus: 422}
	store := newFakeStore()

	run, err := startRealRun(t, provider, store)
	require.NoError(t, err)

	assert.Equal(t, setuplog.StatusRolledBack, run.Status)
	assertStatusInvariant(t, run)
	require.NotNil(t, run.CompletedAt)

	created := run.Record(setuplog.StepCreateEmployee)
	assert.Equal(t, setuplog.StepCompletedStatus, created.Status)
	require.NotNil(t, created.RolledBackAt)
	assert.Empty(t, created.RollbackError)

	// The external employee record was compensated away.
	employeeID, _ := created.RollbackData["externalEmployeeId"].(string)
	require.NotEmpty(t, employeeID)
	_, exists := provider.Employee(employeeID)
	assert.False(t, exists)

	assert.Equal(t, setuplog.StepFailedStatus, run.Record(setuplog.StepAssignProfile).Status)
	for _, k := range []setuplog.StepKind{
		setuplog.StepSetupLeave, setuplog.StepConfigureTax, setuplog.StepAddCalculations,
		setuplog.StepVerifySetup, setuplog.StepSendNotification,
	} {
		assert.Equal(t, setuplog.StepSkippedStatus, run.Record(k).Status, "step %s", k)
	}

	require.Len(t, run.Errors, 1)
	assert.Equal(t, "PROFILE_REJECTED", run.Errors[0].Code)
	assert.False(t, run.Errors[0].IsRollback())
}

func TestPipelinePartialWhenRollbackFails(t *testing.T) {
	provider := payroll.NewFake()
	provider.FailOn["AssignProfile"] = &payroll.Error{Code: "PROFILE_REJECTED", Message: "profile not licensed", HTTPStatus: 422}
	provider.FailOn["DeleteEmployee"] = &payroll.Error{Code: "PROVIDER_UNREACHABLE", Message: "gateway timeout", HTTPStatus: 504}
	store := newFakeStore()

	run, err := startRealRun(t, provider, store)
	require.NoError(t, err)

	assert.Equal(t, setuplog.StatusPartial, run.Status)
	assertStatusInvariant(t, run)

	created := run.Record(setuplog.StepCreateEmployee)
	assert.Nil(t, created.RolledBackAt)
	assert.NotEmpty(t, created.RollbackError)

	// rollbackData stays on the still-applied step as the remediation input.
	employeeID, _ := created.RollbackData["externalEmployeeId"].(string)
	assert.NotEmpty(t, employeeID)

	var rollbackErrs []setuplog.SetupError
	for _, e := range run.Errors {
		if e.IsRollback() {
			rollbackErrs = append(rollbackErrs, e)
		}
	}
	require.Len(t, rollbackErrs, 1)
	assert.Equal(t, "ROLLBACK_PROVIDER_UNREACHABLE", rollbackErrs[0].Code)
	assert.Equal(t, setuplog.StepCreateEmployee, rollbackErrs[0].Step)
}

func TestPipelineGuardRejectsDuplicate(t *testing.T) {
	provider := payroll.NewFake()
	store := newFakeStore()

	// An in-flight run already exists for the staff member.
	existing := setuplog.NewRun(context.Background(), testTenant, testStaff, "event:staff-created", nil)
	require.NoError(t, store.Create(context.Background(), existing))

	_, err := startRealRun(t, provider, store)
	require.ErrorIs(t, err, setuplog.ErrRunInFlight)

	runs, err := store.FindByStaffID(context.Background(), testTenant, testStaff)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestPipelineFailedWhenNothingToCompensate(t *testing.T) {
	// Completed steps exist but none are rollback-capable, so compensation
	// has nothing to do and the run is FAILED, not ROLLED_BACK.
	var rollbacks []setuplog.StepKind
	steps := []Step{
		&scriptedStep{kind: setuplog.StepSetupLeave, rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepConfigureTax, rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepVerifySetup, execErr: errors.New("verification mismatch"), rollbackJournal: &rollbacks},
	}

	store := newFakeStore()
	p := NewPipeline(store, testDirectory(), steps)

	run, err := p.Start(context.Background(), testTenant, testStaff, "test")
	require.NoError(t, err)

	assert.Equal(t, setuplog.StatusFailed, run.Status)
	assertStatusInvariant(t, run)
	assert.Empty(t, rollbacks)
}

func TestPipelineCompensatesInReverseOrder(t *testing.T) {
	var execs, rollbacks []setuplog.StepKind
	steps := []Step{
		&scriptedStep{kind: setuplog.StepCreateEmployee, canRollback: true, execJournal: &execs, rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepAssignProfile, canRollback: true, execJournal: &execs, rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepSetupLeave, execJournal: &execs, rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepAddCalculations, canRollback: true, execJournal: &execs, rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepVerifySetup, execErr: errors.New("boom"), execJournal: &execs, rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepSendNotification, execJournal: &execs, rollbackJournal: &rollbacks},
	}

	store := newFakeStore()
	p := NewPipeline(store, testDirectory(), steps)

	run, err := p.Start(context.Background(), testTenant, testStaff, "test")
	require.NoError(t, err)

	assert.Equal(t, setuplog.StatusRolledBack, run.Status)
	assertStatusInvariant(t, run)

	// Forward execution stopped at the failing step.
	assert.Equal(t, []setuplog.StepKind{
		setuplog.StepCreateEmployee, setuplog.StepAssignProfile,
		setuplog.StepSetupLeave, setuplog.StepAddCalculations, setuplog.StepVerifySetup,
	}, execs)

	// Compensation covers only COMPLETED rollback-capable steps, strictly
	// in reverse execution order.
	assert.Equal(t, []setuplog.StepKind{
		setuplog.StepAddCalculations, setuplog.StepAssignProfile, setuplog.StepCreateEmployee,
	}, rollbacks)
}

func TestPipelineRollbackFailureDoesNotStopCompensation(t *testing.T) {
	var rollbacks []setuplog.StepKind
	steps := []Step{
		&scriptedStep{kind: setuplog.StepCreateEmployee, canRollback: true, rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepAssignProfile, canRollback: true, rollbackErr: errors.New("provider down"), rollbackJournal: &rollbacks},
		&scriptedStep{kind: setuplog.StepVerifySetup, execErr: errors.New("boom"), rollbackJournal: &rollbacks},
	}

	store := newFakeStore()
	p := NewPipeline(store, testDirectory(), steps)

	run, err := p.Start(context.Background(), testTenant, testStaff, "test")
	require.NoError(t, err)

	// Later step's rollback failed, earlier step's rollback still ran.
	assert.Equal(t, []setuplog.StepKind{setuplog.StepAssignProfile, setuplog.StepCreateEmployee}, rollbacks)
	assert.Equal(t, setuplog.StatusPartial, run.Status)
	assertStatusInvariant(t, run)
}

func TestPipelinePanicBecomesStepFailure(t *testing.T) {
	steps := []Step{
		&scriptedStep{kind: setuplog.StepCreateEmployee, execPanic: true},
	}

	store := newFakeStore()
	p := NewPipeline(store, testDirectory(), steps)

	run, err := p.Start(context.Background(), testTenant, testStaff, "test")
	require.NoError(t, err)

	assert.Equal(t, setuplog.StatusFailed, run.Status)
	rec := run.Record(setuplog.StepCreateEmployee)
	assert.Equal(t, setuplog.StepFailedStatus, rec.Status)
	assert.Contains(t, rec.Error, "panicked")
}

func TestPipelineStoreFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.failSaveProgress = errors.New("database unavailable")

	provider := payroll.NewFake()
	_, err := startRealRun(t, provider, store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestPipelineUnknownStaffFails(t *testing.T) {
	store := newFakeStore()
	p := NewPipeline(store, staff.NewMemoryDirectory(), DefaultSteps(payroll.NewFake()))

	_, err := p.Start(context.Background(), testTenant, "ghost", "test")
	require.ErrorIs(t, err, staff.ErrNotFound)

	// Nothing was persisted: the guard row is only created after the staff
	// snapshot resolves.
	runs, _ := store.FindByStaffID(context.Background(), testTenant, "ghost")
	assert.Empty(t, runs)
}
