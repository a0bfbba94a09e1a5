package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/task-manage/internal/broker"
	"github.com/cuongbtq/task-manage/internal/job"
	"github.com/cuongbtq/task-manage/internal/metrics"
	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/task"
	"github.com/google/uuid"
)

// RecordStore is the Job Record Store used by the orchestrator
type RecordStore interface {
	CreateOrMerge(ctx context.Context, rec *job.Record) error
	GetOrCreate(ctx context.Context, id, worker string) (*job.Record, error)
	Save(ctx context.Context, rec *job.Record) error
}

// NewRecordID derives a record id from t. Ids are unique as long as the clock
// does not step backwards.
func NewRecordID(t time.Time) string {
	seed := fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(seed)).String()
}

// Creator is the public entry point for submitting jobs
type Creator struct {
	registry  *registry.Registry
	submitter broker.Submitter
	store     RecordStore
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewCreator creates a new Creator
func NewCreator(reg *registry.Registry, submitter broker.Submitter, store RecordStore, m *metrics.Metrics, logger *slog.Logger) *Creator {
	return &Creator{
		registry:  reg,
		submitter: submitter,
		store:     store,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Create submits a job for workerName and returns its record id. The chain
// reports terminalStatus to the result handler when the worker completes.
func (c *Creator) Create(ctx context.Context, workerName string, terminalStatus int, args ...any) (string, error) {
	raw, err := task.EncodeArgs(args...)
	if err != nil {
		return "", err
	}
	return c.CreateRaw(ctx, workerName, terminalStatus, raw)
}

// CreateRaw is Create with pre-encoded arguments
func (c *Creator) CreateRaw(ctx context.Context, workerName string, terminalStatus int, args []json.RawMessage) (string, error) {
	if _, err := c.registry.Lookup(workerName); err != nil {
		return "", err
	}
	if args == nil {
		args = []json.RawMessage{}
	}

	recordID := NewRecordID(c.now())

	taskArgs := make([]json.RawMessage, 0, len(args)+1)
	taskArgs = append(taskArgs, mustMarshal(recordID))
	taskArgs = append(taskArgs, args...)

	handlerArgs := []json.RawMessage{
		mustMarshal(workerName),
		mustMarshal(recordID),
		mustMarshal(terminalStatus),
	}

	msg := task.NewMessage(workerName, taskArgs, task.Signature{
		Task: task.ResultHandlerTask,
		Args: handlerArgs,
	})

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode job args: %w", err)
	}

	brokerTaskID, err := c.submitter.Submit(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("failed to submit job %s: %w", workerName, err)
	}

	rec := &job.Record{
		ID:           recordID,
		Worker:       workerName,
		Args:         argsJSON,
		BrokerTaskID: brokerTaskID,
		Status:       job.StatusCreated,
	}
	if err := c.store.CreateOrMerge(ctx, rec); err != nil {
		// The job is already on the broker, so failing here would let a retry
		// submit it twice. The result handler creates the record on completion.
		c.logger.Error("[Task Creator] Failed to persist job record",
			slog.String("worker", workerName),
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
	}

	c.metrics.JobCreated(workerName)
	c.logger.Info("[Task Creator] Create task",
		slog.String("worker", workerName),
		slog.String("record_id", recordID),
		slog.String("task_id", brokerTaskID),
	)

	return recordID, nil
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
