package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evantohost/tesseract/internal/model"

	_ "modernc.org/sqlite"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    worker_id   TEXT NOT NULL,
    action      TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS job_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id     TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    status     TEXT NOT NULL,
    progress   REAL NOT NULL,
    created_at DATETIME NOT NULL
)`

const createEventsIndex = `
CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events (job_id, seq)`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createJobsTable, createEventsTable, createEventsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job record. A zero CreatedAt is stamped with the
// current time.
func (s *SQLiteStore) CreateJob(ctx context.Context, rec *model.JobRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (
			id, worker_id, action, status, error, duration_ms, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkerID, rec.Action, rec.Status, rec.Error,
		rec.DurationMS, rec.CreatedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.JobRecord, error) {
	rec := &model.JobRecord{}
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, worker_id, action, status, error, duration_ms, created_at, finished_at
		FROM jobs WHERE id = ?`, id,
	).Scan(
		&rec.ID, &rec.WorkerID, &rec.Action, &rec.Status, &errMsg,
		&rec.DurationMS, &rec.CreatedAt, &rec.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	rec.Error = errMsg.String
	return rec, nil
}

// ListJobs returns a paginated list of jobs ordered by created_at DESC, along
// with the total count of all jobs.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*model.JobRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, worker_id, action, status, error, duration_ms, created_at, finished_at
		FROM jobs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.JobRecord
	for rows.Next() {
		rec := &model.JobRecord{}
		var errMsg sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.WorkerID, &rec.Action, &rec.Status, &errMsg,
			&rec.DurationMS, &rec.CreatedAt, &rec.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		rec.Error = errMsg.String
		jobs = append(jobs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// UpdateJobStatus updates the status of a non-terminal job.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ? WHERE id = ?", status, id,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return checkAffected(result)
}

// FinishJob records the terminal status, error message, and duration of a job.
func (s *SQLiteStore) FinishJob(ctx context.Context, id, status, errMsg string, durationMS int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = ?, duration_ms = ?, finished_at = ? WHERE id = ?",
		status, errMsg, durationMS, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return checkAffected(result)
}

// GetJobStats returns aggregate counts and the average duration of finished
// jobs.
func (s *SQLiteStore) GetJobStats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{
		CountByStatus: map[string]int{},
		CountByAction: map[string]int{},
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	rows, err = tx.QueryContext(ctx, "SELECT action, COUNT(*) FROM jobs GROUP BY action")
	if err != nil {
		return nil, fmt.Errorf("count by action: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		stats.CountByAction[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action counts: %w", err)
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM jobs WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	return stats, nil
}

// InsertEvent appends one progress event to a job's trail.
func (s *SQLiteStore) InsertEvent(ctx context.Context, rec *model.ProgressRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_events (job_id, seq, status, progress, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.JobID, rec.Seq, rec.Status, rec.Progress, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job event: %w", err)
	}
	return nil
}

// GetEvents returns a job's progress events in sequence order.
func (s *SQLiteStore) GetEvents(ctx context.Context, jobID string) ([]model.ProgressRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, seq, status, progress, created_at
		FROM job_events WHERE job_id = ? ORDER BY seq ASC`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("get job events: %w", err)
	}
	defer rows.Close()

	var events []model.ProgressRecord
	for rows.Next() {
		var rec model.ProgressRecord
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.Seq, &rec.Status, &rec.Progress, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job event: %w", err)
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job events: %w", err)
	}
	return events, nil
}

func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
