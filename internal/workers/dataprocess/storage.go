package dataprocess

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS test_model (
	id          BIGSERIAL PRIMARY KEY,
	seq         INTEGER NOT NULL,
	create_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// SQLStore writes test rows to PostgreSQL
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore creates a new SQLStore
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the test_model table when missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, testSchema); err != nil {
		return fmt.Errorf("failed to migrate test_model: %w", err)
	}
	return nil
}

// InsertTestRows inserts n rows in a single transaction
func (s *SQLStore) InsertTestRows(ctx context.Context, n int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO test_model (seq, create_time) VALUES ($1, $2)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, i, time.Now()); err != nil {
			return fmt.Errorf("failed to insert test row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit test rows: %w", err)
	}
	return nil
}

// CountTestRows returns the number of rows in test_model
func (s *SQLStore) CountTestRows(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM test_model`); err != nil {
		return 0, fmt.Errorf("failed to count test rows: %w", err)
	}
	return n, nil
}
