package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on incompatible schema changes; an old database
// must be deleted rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

// Run is one recorded pipeline invocation.
type Run struct {
	ID             string
	JobDigest      string
	OutputPath     string
	Status         string
	InputCount     int
	ConvertedCount int
	ResumedCount   int
	FailedCount    int
	Duration       time.Duration
	TotalAudioMS   int64
	ErrorSummary   string
	CreatedAt      time.Time
}

// Run status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Store persists run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the history database at path, creating it and its parent
// directory on first use.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// RecordRun inserts one run row. An empty ID gets a fresh UUID, a zero
// CreatedAt gets the current time. Returns the stored run.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
            id, job_digest, output_path, status,
            input_count, converted_count, resumed_count, failed_count,
            duration_ms, total_audio_ms, error_summary, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.JobDigest,
		run.OutputPath,
		run.Status,
		run.InputCount,
		run.ConvertedCount,
		run.ResumedCount,
		run.FailedCount,
		run.Duration.Milliseconds(),
		run.TotalAudioMS,
		nullableString(run.ErrorSummary),
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A limit below 1
// defaults to 20.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_digest, output_path, status,
            input_count, converted_count, resumed_count, failed_count,
            duration_ms, total_audio_ms, error_summary, created_at
        FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunsForDigest returns runs recorded against one job identity, newest first.
func (s *Store) RunsForDigest(ctx context.Context, digest string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_digest, output_path, status,
            input_count, converted_count, resumed_count, failed_count,
            duration_ms, total_audio_ms, error_summary, created_at
        FROM runs WHERE job_digest = ? ORDER BY created_at DESC`, digest)
	if err != nil {
		return nil, fmt.Errorf("query runs by digest: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run        Run
		durationMS int64
		summary    sql.NullString
		createdAt  string
	)
	if err := rows.Scan(
		&run.ID, &run.JobDigest, &run.OutputPath, &run.Status,
		&run.InputCount, &run.ConvertedCount, &run.ResumedCount, &run.FailedCount,
		&durationMS, &run.TotalAudioMS, &summary, &createdAt,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.ErrorSummary = summary.String
	if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		run.CreatedAt = parsed
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
