// Package sqlite provides a SQLite-backed implementation of setuplog.Store.
//
// WAL mode is enabled on Open so the provisioning worker can write run
// progress while the HTTP query surface reads concurrently. The single
// in-flight-run invariant is enforced at the storage level with a partial
// unique index over non-terminal statuses, which closes the check-then-create
// race under concurrent duplicate trigger delivery.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/careops/staff-provisioning/internal/coordinator/setuplog"

	// Register the pure-Go SQLite driver (no CGO, builds on Alpine).
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS setup_runs (
    -- One row per provisioning attempt, updated in place as the run advances.
    id                   TEXT PRIMARY KEY,

    tenant_id            TEXT    NOT NULL,
    staff_id             TEXT    NOT NULL,
    triggered_by         TEXT    NOT NULL DEFAULT '',

    -- PENDING | IN_PROGRESS | COMPLETED | FAILED | PARTIAL | ROLLED_BACK
    status               TEXT    NOT NULL,

    -- Set once the external employee record exists; NULL before.
    external_employee_id TEXT,

    -- Denormalized step outcomes for querying without touching the JSON docs.
    profile_assigned     TEXT,
    leave_initialized    INTEGER NOT NULL DEFAULT 0,
    tax_configured       INTEGER NOT NULL DEFAULT 0,
    calculations_added   INTEGER NOT NULL DEFAULT 0,

    -- Versioned JSON documents; source of truth for progress and rollback.
    steps                TEXT    NOT NULL DEFAULT '{"v":1,"steps":[]}',
    errors               TEXT    NOT NULL DEFAULT '{"v":1,"errors":[]}',

    -- W3C trace correlation, captured at run creation.
    trace_id             TEXT    NOT NULL DEFAULT '',
    span_id              TEXT    NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT (SQLite idiom).
    started_at           TEXT    NOT NULL,
    completed_at         TEXT
);

-- The idempotency guard: at most one non-terminal run per staff member.
-- A partial unique index makes the guard atomic with the insert, so a
-- duplicate concurrent Create loses with a constraint violation instead of
-- silently starting a second run.
CREATE UNIQUE INDEX IF NOT EXISTS idx_setup_runs_inflight
    ON setup_runs(tenant_id, staff_id)
    WHERE status IN ('PENDING', 'IN_PROGRESS');

CREATE INDEX IF NOT EXISTS idx_setup_runs_tenant_status ON setup_runs(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_setup_runs_staff ON setup_runs(tenant_id, staff_id);
CREATE INDEX IF NOT EXISTS idx_setup_runs_trace ON setup_runs(trace_id);
`

// stepsDoc / errorsDoc wrap the embedded lists with an explicit schema
// version so future layout changes are deliberate migrations, not silent
// drift in a dynamic map.
type stepsDoc struct {
	V     int                   `json:"v"`
	Steps []setuplog.StepRecord `json:"steps"`
}

type errorsDoc struct {
	V      int                   `json:"v"`
	Errors []setuplog.SetupError `json:"errors"`
}

const docVersion = 1

const defaultPerPage = 50

// Store is the SQLite implementation of setuplog.Store.
type Store struct {
	db *sql.DB
}

var _ setuplog.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
//
//	store, err := sqlite.Open("./data/setuplog.db")
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new run row. The partial unique index rejects the insert
// when a non-terminal run already exists for the staff member.
func (s *Store) Create(ctx context.Context, run *setuplog.SetupRun) error {
	stepsJSON, errsJSON, err := marshalDocs(run.Steps, run.Errors)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO setup_runs
			(id, tenant_id, staff_id, triggered_by, status,
			 external_employee_id, profile_assigned, leave_initialized,
			 tax_configured, calculations_added, steps, errors,
			 trace_id, span_id, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		run.ID, run.TenantID, run.StaffID, run.TriggeredBy, string(run.Status),
		nullableString(run.ExternalEmployeeID), nullableString(run.ProfileAssigned),
		boolToInt(run.LeaveInitialized), boolToInt(run.TaxConfigured), run.CalculationsAdded,
		stepsJSON, errsJSON,
		run.TraceID, run.SpanID,
		formatTime(run.StartedAt), nullableTime(run.CompletedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return setuplog.ErrRunInFlight
		}
		return fmt.Errorf("sqlite: create run %q: %w", run.ID, err)
	}
	return nil
}

// FindByID returns the run only if it belongs to the tenant; cross-tenant
// lookups surface as ErrNotFound so existence never leaks.
func (s *Store) FindByID(ctx context.Context, tenantID, id string) (*setuplog.SetupRun, error) {
	const q = selectColumns + ` FROM setup_runs WHERE tenant_id = ? AND id = ?`
	return scanRun(s.db.QueryRowContext(ctx, q, tenantID, id))
}

// FindByStaffID returns every run for the staff member, newest first.
func (s *Store) FindByStaffID(ctx context.Context, tenantID, staffID string) ([]*setuplog.SetupRun, error) {
	const q = selectColumns + `
		FROM setup_runs
		WHERE tenant_id = ? AND staff_id = ?
		ORDER BY started_at DESC`
	return s.queryRuns(ctx, q, tenantID, staffID)
}

// ExistsForStaff reports whether a non-terminal run exists for the staff
// member within the tenant.
func (s *Store) ExistsForStaff(ctx context.Context, tenantID, staffID string) (bool, error) {
	const q = `
		SELECT COUNT(*) FROM setup_runs
		WHERE tenant_id = ? AND staff_id = ? AND status IN ('PENDING', 'IN_PROGRESS')`

	var n int
	if err := s.db.QueryRowContext(ctx, q, tenantID, staffID).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: exists for staff %q: %w", staffID, err)
	}
	return n > 0, nil
}

// MarkInProgress claims a PENDING run for execution.
func (s *Store) MarkInProgress(ctx context.Context, tenantID, id string) error {
	const q = `UPDATE setup_runs SET status = ? WHERE tenant_id = ? AND id = ?`
	return s.exec(ctx, q, string(setuplog.StatusInProgress), tenantID, id)
}

// SaveProgress persists the run's step list, errors and summary fields.
// Called after every step transition so progress survives a crash.
func (s *Store) SaveProgress(ctx context.Context, run *setuplog.SetupRun) error {
	stepsJSON, errsJSON, err := marshalDocs(run.Steps, run.Errors)
	if err != nil {
		return err
	}

	const q = `
		UPDATE setup_runs SET
			status = ?, external_employee_id = ?, profile_assigned = ?,
			leave_initialized = ?, tax_configured = ?, calculations_added = ?,
			steps = ?, errors = ?, completed_at = ?
		WHERE tenant_id = ? AND id = ?`

	return s.exec(ctx, q,
		string(run.Status), nullableString(run.ExternalEmployeeID), nullableString(run.ProfileAssigned),
		boolToInt(run.LeaveInitialized), boolToInt(run.TaxConfigured), run.CalculationsAdded,
		stepsJSON, errsJSON, nullableTime(run.CompletedAt),
		run.TenantID, run.ID,
	)
}

// MarkCompleted records a fully successful run together with its summary.
func (s *Store) MarkCompleted(ctx context.Context, tenantID, id string, summary setuplog.Summary) error {
	const q = `
		UPDATE setup_runs SET
			status = ?, external_employee_id = ?, profile_assigned = ?,
			leave_initialized = ?, tax_configured = ?, calculations_added = ?,
			completed_at = ?
		WHERE tenant_id = ? AND id = ?`

	return s.exec(ctx, q,
		string(setuplog.StatusCompleted),
		nullableString(summary.ExternalEmployeeID), nullableString(summary.ProfileAssigned),
		boolToInt(summary.LeaveInitialized), boolToInt(summary.TaxConfigured), summary.CalculationsAdded,
		formatTimeNow(), tenantID, id,
	)
}

// MarkFailed records a terminal failure. The stored status is recomputed
// from the step list, so FAILED vs PARTIAL is decided by the same pure
// function the orchestrator uses.
func (s *Store) MarkFailed(ctx context.Context, tenantID, id string, steps []setuplog.StepRecord, errs []setuplog.SetupError) error {
	status := setuplog.DeriveStatus(steps)
	if status != setuplog.StatusPartial {
		status = setuplog.StatusFailed
	}
	return s.markTerminal(ctx, tenantID, id, status, steps, errs)
}

// MarkRolledBack records a fully compensated run.
func (s *Store) MarkRolledBack(ctx context.Context, tenantID, id string, steps []setuplog.StepRecord, errs []setuplog.SetupError) error {
	return s.markTerminal(ctx, tenantID, id, setuplog.StatusRolledBack, steps, errs)
}

func (s *Store) markTerminal(ctx context.Context, tenantID, id string, status setuplog.Status, steps []setuplog.StepRecord, errs []setuplog.SetupError) error {
	stepsJSON, errsJSON, err := marshalDocs(steps, errs)
	if err != nil {
		return err
	}

	const q = `
		UPDATE setup_runs SET status = ?, steps = ?, errors = ?, completed_at = ?
		WHERE tenant_id = ? AND id = ?`

	return s.exec(ctx, q, string(status), stepsJSON, errsJSON, formatTimeNow(), tenantID, id)
}

// FindPendingSetups returns the tenant's non-terminal runs, oldest first.
func (s *Store) FindPendingSetups(ctx context.Context, tenantID string) ([]*setuplog.SetupRun, error) {
	const q = selectColumns + `
		FROM setup_runs
		WHERE tenant_id = ? AND status IN ('PENDING', 'IN_PROGRESS')
		ORDER BY started_at ASC`
	return s.queryRuns(ctx, q, tenantID)
}

// FindFailedSetups returns the tenant's FAILED and PARTIAL runs, newest
// first. PARTIAL runs carry the rollbackData needed for manual remediation.
func (s *Store) FindFailedSetups(ctx context.Context, tenantID string) ([]*setuplog.SetupRun, error) {
	const q = selectColumns + `
		FROM setup_runs
		WHERE tenant_id = ? AND status IN ('FAILED', 'PARTIAL')
		ORDER BY started_at DESC`
	return s.queryRuns(ctx, q, tenantID)
}

// List returns a page of the tenant's runs plus the total match count.
func (s *Store) List(ctx context.Context, tenantID string, filter setuplog.ListFilter) ([]*setuplog.SetupRun, int, error) {
	where := "WHERE tenant_id = ?"
	args := []any{tenantID}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.TriggeredBy != "" {
		where += " AND triggered_by = ?"
		args = append(args, filter.TriggeredBy)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM setup_runs "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: count runs: %w", err)
	}

	perPage := filter.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	q := selectColumns + " FROM setup_runs " + where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, perPage, (page-1)*perPage)

	runs, err := s.queryRuns(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// GetStatistics returns per-status run counts for the tenant.
func (s *Store) GetStatistics(ctx context.Context, tenantID string) (*setuplog.Statistics, error) {
	const q = `SELECT status, COUNT(*) FROM setup_runs WHERE tenant_id = ? GROUP BY status`

	rows, err := s.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: statistics for tenant %q: %w", tenantID, err)
	}
	defer rows.Close()

	stats := &setuplog.Statistics{ByStatus: make(map[setuplog.Status]int)}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scan statistics: %w", err)
		}
		stats.ByStatus[setuplog.Status(status)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: statistics rows: %w", err)
	}
	return stats, nil
}

const selectColumns = `
	SELECT id, tenant_id, staff_id, triggered_by, status,
	       COALESCE(external_employee_id, ''), COALESCE(profile_assigned, ''),
	       leave_initialized, tax_configured, calculations_added,
	       steps, errors, trace_id, span_id, started_at, completed_at`

// exec runs a tenant-scoped UPDATE and maps zero affected rows to
// ErrNotFound, covering both missing and cross-tenant ids.
func (s *Store) exec(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return setuplog.ErrNotFound
	}
	return nil
}

func (s *Store) queryRuns(ctx context.Context, q string, args ...any) ([]*setuplog.SetupRun, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query runs: %w", err)
	}
	defer rows.Close()

	var runs []*setuplog.SetupRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate runs: %w", err)
	}
	return runs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*setuplog.SetupRun, error) {
	var (
		run            setuplog.SetupRun
		status         string
		leaveInit      int
		taxConf        int
		stepsJSON      string
		errsJSON       string
		startedAtStr   string
		completedAtStr sql.NullString
	)

	err := row.Scan(
		&run.ID, &run.TenantID, &run.StaffID, &run.TriggeredBy, &status,
		&run.ExternalEmployeeID, &run.ProfileAssigned,
		&leaveInit, &taxConf, &run.CalculationsAdded,
		&stepsJSON, &errsJSON, &run.TraceID, &run.SpanID,
		&startedAtStr, &completedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, setuplog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan run: %w", err)
	}

	run.Status = setuplog.Status(status)
	run.LeaveInitialized = leaveInit != 0
	run.TaxConfigured = taxConf != 0

	var sd stepsDoc
	if err := json.Unmarshal([]byte(stepsJSON), &sd); err != nil {
		return nil, fmt.Errorf("sqlite: decode steps for run %q: %w", run.ID, err)
	}
	run.Steps = sd.Steps

	var ed errorsDoc
	if err := json.Unmarshal([]byte(errsJSON), &ed); err != nil {
		return nil, fmt.Errorf("sqlite: decode errors for run %q: %w", run.ID, err)
	}
	run.Errors = ed.Errors

	run.StartedAt, err = parseRFC3339(startedAtStr)
	if err != nil {
		return nil, err
	}
	if completedAtStr.Valid {
		t, err := parseRFC3339(completedAtStr.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}

	return &run, nil
}

func marshalDocs(steps []setuplog.StepRecord, errs []setuplog.SetupError) (string, string, error) {
	if steps == nil {
		steps = []setuplog.StepRecord{}
	}
	if errs == nil {
		errs = []setuplog.SetupError{}
	}

	stepsJSON, err := json.Marshal(stepsDoc{V: docVersion, Steps: steps})
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encode steps: %w", err)
	}
	errsJSON, err := json.Marshal(errorsDoc{V: docVersion, Errors: errs})
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encode errors: %w", err)
	}
	return string(stepsJSON), string(errsJSON), nil
}

// nullableString returns nil for empty strings so the column stores NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
