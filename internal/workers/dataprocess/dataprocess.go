package dataprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/task-manage/internal/job"
	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/task"
)

// Worker names
const (
	InsertTestData = "task.db.insert_test_data"
	CountTestData  = "task.db.count_test_data"
)

// DefaultInsertRows is the number of rows insert_test_data writes when no count is given
const DefaultInsertRows = 1000

// Store persists test rows
type Store interface {
	InsertTestRows(ctx context.Context, n int) error
	CountTestRows(ctx context.Context) (int64, error)
}

// StatusMarker records intermediate job checkpoints
type StatusMarker interface {
	MarkStatus(ctx context.Context, id string, status int) error
}

// InsertResult is returned by insert_test_data
type InsertResult struct {
	Num  int     `json:"num"`
	Time float64 `json:"time"`
}

// CountResult is returned by count_test_data
type CountResult struct {
	Count     int64  `json:"count"`
	CheckedAt string `json:"checked_at,omitempty"`
}

// Module is the data-processing worker contribution
type Module struct {
	store  Store
	marker StatusMarker
	logger *slog.Logger
	now    func() time.Time
}

// New creates the module
func New(store Store, marker StatusMarker, logger *slog.Logger) *Module {
	return &Module{
		store:  store,
		marker: marker,
		logger: logger,
		now:    time.Now,
	}
}

// Contribution lists the workers of this module. insert_test_data has no
// post-processor, so its terminal result carries the missing handler error.
func (m *Module) Contribution() registry.Contribution {
	return registry.Contribution{
		Module: "dataprocess",
		Workers: []registry.Descriptor{
			{Name: InsertTestData, Entry: m.insertTestData},
			{Name: CountTestData, Entry: m.countTestData, PostProcessor: m.stampCount},
		},
	}
}

// insertTestData args: [num?]
func (m *Module) insertTestData(ctx context.Context, recordID string, args []json.RawMessage) (any, error) {
	num := DefaultInsertRows
	if len(args) > 0 {
		if err := task.DecodeArg(args, 0, &num); err != nil {
			return nil, err
		}
		if num < 0 {
			return nil, fmt.Errorf("%w: row count must not be negative", task.ErrMalformedMessage)
		}
	}

	if err := m.marker.MarkStatus(ctx, recordID, job.StatusRunning); err != nil {
		return nil, err
	}

	start := m.now()
	if err := m.store.InsertTestRows(ctx, num); err != nil {
		return nil, err
	}
	elapsed := m.now().Sub(start).Seconds()

	m.logger.Info("Test data inserted",
		slog.String("record_id", recordID),
		slog.Int("num", num),
		slog.Float64("seconds", elapsed),
	)

	return InsertResult{Num: num, Time: elapsed}, nil
}

func (m *Module) countTestData(ctx context.Context, recordID string, _ []json.RawMessage) (any, error) {
	n, err := m.store.CountTestRows(ctx)
	if err != nil {
		return nil, err
	}
	return CountResult{Count: n}, nil
}

func (m *Module) stampCount(_ context.Context, result json.RawMessage) (any, error) {
	var res CountResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("failed to decode count result: %w", err)
	}
	res.CheckedAt = m.now().UTC().Format(time.RFC3339)
	return res, nil
}
