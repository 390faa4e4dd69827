package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stokerlabs/stoker/internal/model"

	_ "modernc.org/sqlite"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    task         TEXT NOT NULL DEFAULT '',
    submitted_at DATETIME NOT NULL,
    started_at   DATETIME,
    finished_at  DATETIME,
    error        TEXT NOT NULL DEFAULT '',
    error_detail TEXT NOT NULL DEFAULT '',
    result_ref   TEXT NOT NULL DEFAULT ''
)`

// Compile-time interface satisfaction check.
var _ Registry = (*SQLiteRegistry)(nil)

// SQLiteRegistry implements Registry over a SQLite database, for deployments
// that want job records to survive a restart. The lifecycle rules are the
// same as the in-memory registry's; Update applies its mutator inside a
// transaction so concurrent transitions on one record serialize.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry opens the database at dbPath and runs migrations.
//
// The pragmas ride the DSN so every pooled connection gets them, and
// _txlock=immediate makes every transaction take the write lock up front.
// Without it a concurrent Update would read under a deferred snapshot and
// fail the lock upgrade with SQLITE_BUSY, which busy_timeout does not retry.
func NewSQLiteRegistry(dbPath string) (*SQLiteRegistry, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(createJobsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}

	return &SQLiteRegistry{db: db}, nil
}

// Close closes the underlying database connection.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// Create inserts a new job record.
func (r *SQLiteRegistry) Create(ctx context.Context, j *model.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (
			id, status, task, submitted_at, started_at, finished_at,
			error, error_detail, result_ref
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Status, j.Task, j.SubmittedAt, j.StartedAt, j.FinishedAt,
		j.Error, j.ErrorDetail, j.ResultRef,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get retrieves a job record by id.
func (r *SQLiteRegistry) Get(ctx context.Context, id string) (*model.Job, error) {
	return scanJob(r.db.QueryRowContext(ctx,
		`SELECT id, status, task, submitted_at, started_at, finished_at,
			error, error_detail, result_ref
		FROM jobs WHERE id = ?`, id,
	))
}

// List returns records in creation order (ids are ULIDs, so id order is
// creation order), optionally filtered by status.
func (r *SQLiteRegistry) List(ctx context.Context, statusFilter string) ([]*model.Job, error) {
	query := `SELECT id, status, task, submitted_at, started_at, finished_at,
			error, error_detail, result_ref
		FROM jobs`
	args := []any{}
	if statusFilter != "" {
		query += " WHERE status = ?"
		args = append(args, statusFilter)
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j := &model.Job{}
		if err := rows.Scan(
			&j.ID, &j.Status, &j.Task, &j.SubmittedAt, &j.StartedAt, &j.FinishedAt,
			&j.Error, &j.ErrorDetail, &j.ResultRef,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, nil
}

// Update applies fn to the stored record inside a transaction and returns the
// updated record.
func (r *SQLiteRegistry) Update(ctx context.Context, id string, fn Mutator) (*model.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	old, err := scanJob(tx.QueryRowContext(ctx,
		`SELECT id, status, task, submitted_at, started_at, finished_at,
			error, error_detail, result_ref
		FROM jobs WHERE id = ?`, id,
	))
	if err != nil {
		return nil, err
	}

	next, err := applyMutation(old, fn)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, task = ?, started_at = ?, finished_at = ?,
			error = ?, error_detail = ?, result_ref = ?
		WHERE id = ?`,
		next.Status, next.Task, next.StartedAt, next.FinishedAt,
		next.Error, next.ErrorDetail, next.ResultRef, id,
	); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	out := *next
	return &out, nil
}

// Delete removes the record and reports whether it existed.
func (r *SQLiteRegistry) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return affected > 0, nil
}

// rowScanner abstracts *sql.Row for single-record scans.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	err := row.Scan(
		&j.ID, &j.Status, &j.Task, &j.SubmittedAt, &j.StartedAt, &j.FinishedAt,
		&j.Error, &j.ErrorDetail, &j.ResultRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}
