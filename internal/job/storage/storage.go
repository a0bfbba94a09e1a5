package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/task-manage/internal/job"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_model (
	id          UUID PRIMARY KEY,
	worker      VARCHAR(100) NOT NULL,
	args        JSONB,
	task_id     VARCHAR(100),
	status      INTEGER NOT NULL DEFAULT 0,
	retry_times INTEGER NOT NULL DEFAULT 0,
	result      JSONB,
	create_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	update_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	finish_time TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_task_model_create_time ON task_model (create_time DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_task_model_worker ON task_model (worker);
`

const recordColumns = `id, worker, args, COALESCE(task_id, '') AS task_id, status, retry_times, result, create_time, update_time, finish_time`

// Storage is the Job Record Store backed by PostgreSQL
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Migrate creates the task_model table and its indexes when missing
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate task_model: %w", err)
	}
	return nil
}

// CreateOrMerge persists the record written by the Task Creator. If the
// Result Handler got there first, only the creator-owned fields (args, task_id)
// are merged; status and result are left untouched.
func (s *Storage) CreateOrMerge(ctx context.Context, rec *job.Record) error {
	query := `
		INSERT INTO task_model (
			id, worker, args, task_id, status, retry_times, create_time, update_time
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $7
		)
		ON CONFLICT (id) DO UPDATE
		SET args = EXCLUDED.args,
		    task_id = EXCLUDED.task_id
		RETURNING (xmax = 0) AS inserted
	`

	now := s.now()
	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		rec.ID,
		rec.Worker,
		rec.Args,
		rec.BrokerTaskID,
		rec.Status,
		rec.RetryTimes,
		now,
	).Scan(&inserted)
	if err != nil {
		return fmt.Errorf("failed to create job record: %w", err)
	}

	if !inserted {
		s.logger.Info("Job record already created by result handler, merged",
			slog.String("record_id", rec.ID),
		)
	}

	rec.CreateTime = now
	rec.UpdateTime = now
	return nil
}

// GetOrCreate returns the record with id, inserting a bare record for worker
// when none exists yet
func (s *Storage) GetOrCreate(ctx context.Context, id, worker string) (*job.Record, error) {
	query := `
		INSERT INTO task_model (id, worker, status, create_time, update_time)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, id, worker, job.StatusCreated, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to get or create job record: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 1 {
		s.logger.Debug("Job record created on first observation",
			slog.String("record_id", id),
			slog.String("worker", worker),
		)
	}

	return s.GetByID(ctx, id)
}

// GetByID retrieves a job record by its ID
func (s *Storage) GetByID(ctx context.Context, id string) (*job.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM task_model WHERE id = $1`

	var rec job.Record
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}

	return &rec, nil
}

// Save writes the mutable fields of rec. A terminal record is never moved back
// to a non-terminal status; such an update returns job.ErrRecordTerminal.
func (s *Storage) Save(ctx context.Context, rec *job.Record) error {
	query := `
		UPDATE task_model
		SET status = $2,
		    result = $3,
		    retry_times = $4,
		    update_time = $5,
		    finish_time = $6
		WHERE id = $1
		  AND (status <> $7 OR $2 = $7)
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Status,
		rec.Result,
		rec.RetryTimes,
		rec.UpdateTime,
		rec.FinishTime,
		job.StatusTerminal,
	)
	if err != nil {
		return fmt.Errorf("failed to save job record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job record not saved - missing or already terminal",
			slog.String("record_id", rec.ID),
			slog.Int("status", rec.Status),
		)
		return job.ErrRecordTerminal
	}

	return nil
}

// MarkStatus records an intermediate checkpoint reported by a worker entry point
func (s *Storage) MarkStatus(ctx context.Context, id string, status int) error {
	query := `
		UPDATE task_model
		SET status = $2,
		    update_time = $3
		WHERE id = $1 AND status <> $4
	`

	result, err := s.db.ExecContext(ctx, query, id, status, s.now(), job.StatusTerminal)
	if err != nil {
		return fmt.Errorf("failed to mark job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job status mark - no rows affected (record missing or terminal)",
			slog.String("record_id", id),
			slog.Int("status", status),
		)
	}

	return nil
}

// RecordFilter narrows List results
type RecordFilter struct {
	Worker   string
	Status   *int
	PageSize int
	Cursor   *RecordCursor
}

// RecordCursor is the keyset position of the last record of a page
type RecordCursor struct {
	CreateTime time.Time
	ID         string
}

// List returns records newest first. It fetches PageSize+1 rows so the caller
// can tell whether another page exists.
func (s *Storage) List(ctx context.Context, filter RecordFilter) ([]job.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM task_model WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Worker != "" {
		query += fmt.Sprintf(" AND worker = $%d", argIdx)
		args = append(args, filter.Worker)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (create_time, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreateTime, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY create_time DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var records []job.Record
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}

	return records, nil
}
