package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"
)

// fakeStore is an in-memory setuplog.Store honoring the single
// in-flight-run constraint, with per-operation error injection.
type fakeStore struct {
	mu   sync.Mutex
	runs map[string]*setuplog.SetupRun

	failCreate       error
	failSaveProgress error
	failMark         error

	saveCount int
}

var _ setuplog.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{runs: make(map[string]*setuplog.SetupRun)}
}

func cloneRun(run *setuplog.SetupRun) *setuplog.SetupRun {
	cp := *run
	cp.Steps = append([]setuplog.StepRecord(nil), run.Steps...)
	cp.Errors = append([]setuplog.SetupError(nil), run.Errors...)
	return &cp
}

func (s *fakeStore) Create(ctx context.Context, run *setuplog.SetupRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return s.failCreate
	}
	for _, existing := range s.runs {
		if existing.TenantID == run.TenantID && existing.StaffID == run.StaffID && !existing.Status.Terminal() {
			return setuplog.ErrRunInFlight
		}
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *fakeStore) get(tenantID, id string) (*setuplog.SetupRun, error) {
	run, ok := s.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, setuplog.ErrNotFound
	}
	return run, nil
}

func (s *fakeStore) FindByID(ctx context.Context, tenantID, id string) (*setuplog.SetupRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, err := s.get(tenantID, id)
	if err != nil {
		return nil, err
	}
	return cloneRun(run), nil
}

func (s *fakeStore) FindByStaffID(ctx context.Context, tenantID, staffID string) ([]*setuplog.SetupRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*setuplog.SetupRun
	for _, run := range s.runs {
		if run.TenantID == tenantID && run.StaffID == staffID {
			out = append(out, cloneRun(run))
		}
	}
	return out, nil
}

func (s *fakeStore) ExistsForStaff(ctx context.Context, tenantID, staffID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		if run.TenantID == tenantID && run.StaffID == staffID && !run.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MarkInProgress(ctx context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, err := s.get(tenantID, id)
	if err != nil {
		return err
	}
	run.Status = setuplog.StatusInProgress
	return nil
}

func (s *fakeStore) SaveProgress(ctx context.Context, run *setuplog.SetupRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveProgress != nil {
		return s.failSaveProgress
	}
	if _, err := s.get(run.TenantID, run.ID); err != nil {
		return err
	}
	s.runs[run.ID] = cloneRun(run)
	s.saveCount++
	return nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, tenantID, id string, summary setuplog.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark != nil {
		return s.failMark
	}
	run, err := s.get(tenantID, id)
	if err != nil {
		return err
	}
	run.Status = setuplog.StatusCompleted
	run.ExternalEmployeeID = summary.ExternalEmployeeID
	run.ProfileAssigned = summary.ProfileAssigned
	run.LeaveInitialized = summary.LeaveInitialized
	run.TaxConfigured = summary.TaxConfigured
	run.CalculationsAdded = summary.CalculationsAdded
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, tenantID, id string, steps []setuplog.StepRecord, errs []setuplog.SetupError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark != nil {
		return s.failMark
	}
	run, err := s.get(tenantID, id)
	if err != nil {
		return err
	}
	status := setuplog.DeriveStatus(steps)
	if status != setuplog.StatusPartial {
		status = setuplog.StatusFailed
	}
	run.Status = status
	run.Steps = append([]setuplog.StepRecord(nil), steps...)
	run.Errors = append([]setuplog.SetupError(nil), errs...)
	return nil
}

func (s *fakeStore) MarkRolledBack(ctx context.Context, tenantID, id string, steps []setuplog.StepRecord, errs []setuplog.SetupError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMark != nil {
		return s.failMark
	}
	run, err := s.get(tenantID, id)
	if err != nil {
		return err
	}
	run.Status = setuplog.StatusRolledBack
	run.Steps = append([]setuplog.StepRecord(nil), steps...)
	run.Errors = append([]setuplog.SetupError(nil), errs...)
	return nil
}

func (s *fakeStore) FindPendingSetups(ctx context.Context, tenantID string) ([]*setuplog.SetupRun, error) {
	return s.findByStatus(tenantID, setuplog.StatusPending, setuplog.StatusInProgress)
}

func (s *fakeStore) FindFailedSetups(ctx context.Context, tenantID string) ([]*setuplog.SetupRun, error) {
	return s.findByStatus(tenantID, setuplog.StatusFailed, setuplog.StatusPartial)
}

func (s *fakeStore) findByStatus(tenantID string, statuses ...setuplog.Status) ([]*setuplog.SetupRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*setuplog.SetupRun
	for _, run := range s.runs {
		if run.TenantID != tenantID {
			continue
		}
		for _, st := range statuses {
			if run.Status == st {
				out = append(out, cloneRun(run))
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) List(ctx context.Context, tenantID string, filter setuplog.ListFilter) ([]*setuplog.SetupRun, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*setuplog.SetupRun
	for _, run := range s.runs {
		if run.TenantID == tenantID {
			out = append(out, cloneRun(run))
		}
	}
	return out, len(out), nil
}

func (s *fakeStore) GetStatistics(ctx context.Context, tenantID string) (*setuplog.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &setuplog.Statistics{ByStatus: make(map[setuplog.Status]int)}
	for _, run := range s.runs {
		if run.TenantID == tenantID {
			stats.ByStatus[run.Status]++
			stats.Total++
		}
	}
	return stats, nil
}

// scriptedStep is a Step whose outcome is fixed up front. Executions and
// rollbacks are appended to shared journals so tests can assert ordering.
type scriptedStep struct {
	kind        setuplog.StepKind
	canRollback bool

	out         StepOutput
	execErr     error
	rollbackErr error
	execPanic   bool

	execJournal     *[]setuplog.StepKind
	rollbackJournal *[]setuplog.StepKind
}

var _ Step = (*scriptedStep)(nil)

func (s *scriptedStep) Kind() setuplog.StepKind { return s.kind }
func (s *scriptedStep) CanRollback() bool       { return s.canRollback }

func (s *scriptedStep) Execute(ctx context.Context, rc RunContext) (StepOutput, error) {
	if s.execJournal != nil {
		*s.execJournal = append(*s.execJournal, s.kind)
	}
	if s.execPanic {
		panic(fmt.Sprintf("scripted panic in %s", s.kind))
	}
	if s.execErr != nil {
		return StepOutput{}, s.execErr
	}
	return s.out, nil
}

func (s *scriptedStep) Rollback(ctx context.Context, rc RunContext, data setuplog.RollbackData) error {
	if s.rollbackJournal != nil {
		*s.rollbackJournal = append(*s.rollbackJournal, s.kind)
	}
	return s.rollbackErr
}
