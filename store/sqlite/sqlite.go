/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the engine's persistence surface (rap.StateStore) using
  SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  rap.OverrideStore: Engine-written override bookkeeping
  rap.RunStore:      Reconciliation run lifecycle records

KEY TABLES:
  applied_overrides: Latest override this engine wrote per
                     (course, assessment, student), upserted every run.
                     This is what lets the applier tell its own stale
                     values apart from manual instructor edits.
  runs:              One row per reconciliation run with the full
                     report serialized as JSON.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/rapd.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - rap/store.go: Interface definitions
  - rap/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/adapt/rap-engine/rap"
)

var _ rap.StateStore = (*Store)(nil)

// Store implements the engine's storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Overrides this engine wrote, latest value per pair
	CREATE TABLE IF NOT EXISTS applied_overrides (
		course_id TEXT NOT NULL,
		assessment_id TEXT NOT NULL,
		canvas_user_id TEXT NOT NULL,
		minutes INTEGER NOT NULL,
		multiplier TEXT NOT NULL,
		run_id TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		PRIMARY KEY (course_id, assessment_id, canvas_user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_applied_overrides_course
		ON applied_overrides(course_id);

	-- Reconciliation runs with the report serialized as JSON
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL,
		status TEXT NOT NULL,
		dry_run BOOLEAN DEFAULT FALSE,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		error TEXT,
		report_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_course
		ON runs(course_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status
		ON runs(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OVERRIDE STORE (rap.OverrideStore interface)
// =============================================================================

// SaveOverride upserts the latest engine-written override for one pair.
func (s *Store) SaveOverride(ctx context.Context, ov rap.AppliedOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO applied_overrides
		(course_id, assessment_id, canvas_user_id, minutes, multiplier, run_id, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(course_id, assessment_id, canvas_user_id) DO UPDATE SET
			minutes = excluded.minutes,
			multiplier = excluded.multiplier,
			run_id = excluded.run_id,
			applied_at = excluded.applied_at
	`

	_, err := s.db.ExecContext(ctx, query,
		string(ov.Course),
		string(ov.Assessment),
		string(ov.CanvasUserID),
		ov.Minutes,
		ov.Multiplier.String(),
		ov.RunID,
		ov.AppliedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

// AppliedOverrides returns the latest engine-written override per
// (assessment, student) pair for a course.
func (s *Store) AppliedOverrides(ctx context.Context, course rap.CourseID) (map[rap.OverrideKey]rap.AppliedOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT course_id, assessment_id, canvas_user_id, minutes, multiplier, run_id, applied_at
		FROM applied_overrides
		WHERE course_id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, string(course))
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[rap.OverrideKey]rap.AppliedOverride)
	for rows.Next() {
		ov, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides[ov.Key()] = ov
	}
	return overrides, rows.Err()
}

func scanOverride(rows *sql.Rows) (rap.AppliedOverride, error) {
	var (
		ov         rap.AppliedOverride
		multiplier string
		appliedAt  string
	)

	err := rows.Scan(
		&ov.Course, &ov.Assessment, &ov.CanvasUserID,
		&ov.Minutes, &multiplier, &ov.RunID, &appliedAt,
	)
	if err != nil {
		return ov, fmt.Errorf("failed to scan override: %w", err)
	}

	ov.Multiplier, err = decimal.NewFromString(multiplier)
	if err != nil {
		return ov, fmt.Errorf("failed to parse stored multiplier %q: %w", multiplier, err)
	}
	ov.AppliedAt, _ = time.Parse(time.RFC3339Nano, appliedAt)

	return ov, nil
}

// =============================================================================
// RUN STORE (rap.RunStore interface)
// =============================================================================

// SaveRun upserts a run record.
func (s *Store) SaveRun(ctx context.Context, rec *rap.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reportJSON, err := marshalReport(rec.Report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (id, course_id, status, dry_run, started_at, finished_at, error, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			course_id = excluded.course_id,
			status = excluded.status,
			dry_run = excluded.dry_run,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			error = excluded.error,
			report_json = excluded.report_json
	`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Course),
		string(rec.Status),
		rec.DryRun,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		nullTime(rec.FinishedAt),
		nullString(rec.Error),
		reportJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing run record, returning rap.ErrRunNotFound
// when no run with the record's id exists.
func (s *Store) UpdateRun(ctx context.Context, rec *rap.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reportJSON, err := marshalReport(rec.Report)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs
		SET course_id = ?, status = ?, dry_run = ?, started_at = ?, finished_at = ?, error = ?, report_json = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(rec.Course),
		string(rec.Status),
		rec.DryRun,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		nullTime(rec.FinishedAt),
		nullString(rec.Error),
		reportJSON,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s: %w", rec.ID, rap.ErrRunNotFound)
	}
	return nil
}

// Run returns one run record or rap.ErrRunNotFound.
func (s *Store) Run(ctx context.Context, id string) (*rap.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, course_id, status, dry_run, started_at, finished_at, error, report_json
		FROM runs
		WHERE id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("run %s: %w", id, rap.ErrRunNotFound)
	}
	return scanRun(rows)
}

// Runs returns a course's run records, most recent first. A zero limit
// means no limit; an empty course means all courses.
func (s *Store) Runs(ctx context.Context, course rap.CourseID, limit int) ([]*rap.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, course_id, status, dry_run, started_at, finished_at, error, report_json
		FROM runs
	`
	var args []any
	if course != "" {
		query += " WHERE course_id = ?"
		args = append(args, string(course))
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []*rap.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRun(rows *sql.Rows) (*rap.RunRecord, error) {
	var (
		rec        rap.RunRecord
		startedAt  string
		finishedAt sql.NullString
		runErr     sql.NullString
		reportJSON sql.NullString
	)

	err := rows.Scan(
		&rec.ID, &rec.Course, &rec.Status, &rec.DryRun,
		&startedAt, &finishedAt, &runErr, &reportJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt.String)
	}
	rec.Error = runErr.String

	if reportJSON.Valid && reportJSON.String != "" {
		var report rap.ReconciliationReport
		if err := json.Unmarshal([]byte(reportJSON.String), &report); err != nil {
			return nil, fmt.Errorf("failed to parse stored report: %w", err)
		}
		rec.Report = &report
	}

	return &rec, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func marshalReport(report *rap.ReconciliationReport) (sql.NullString, error) {
	if report == nil {
		return sql.NullString{}, nil
	}
	buf, err := json.Marshal(report)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode report: %w", err)
	}
	return sql.NullString{String: string(buf), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
