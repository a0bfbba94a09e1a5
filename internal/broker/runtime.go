package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cuongbtq/task-manage/internal/metrics"
	"github.com/cuongbtq/task-manage/internal/task"
)

// TaskFunc executes one task invocation. The returned value must be JSON
// serializable; it becomes the first argument of the next chain step.
type TaskFunc func(ctx context.Context, args []json.RawMessage) (any, error)

// Task is a named unit of work served by the runtime
type Task struct {
	Name string
	Run  TaskFunc
	// Once wraps every invocation in the idempotency guard
	Once bool
	// KeyFunc selects what identifies an invocation. Defaults to all args.
	KeyFunc func(msg *task.Message) []json.RawMessage
}

// Guard runs a function at most once per key while its lease is held
type Guard interface {
	Key(taskName string, args []json.RawMessage) string
	Do(ctx context.Context, key string, fn func(context.Context) error) (bool, error)
}

// Runtime executes decoded task messages and publishes their chain continuations
type Runtime struct {
	tasks     map[string]Task
	guard     Guard
	submitter Submitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRuntime creates a new Runtime. guard may be nil, in which case Once has no effect.
func NewRuntime(submitter Submitter, guard Guard, m *metrics.Metrics, logger *slog.Logger) *Runtime {
	return &Runtime{
		tasks:     make(map[string]Task),
		guard:     guard,
		submitter: submitter,
		metrics:   m,
		logger:    logger,
	}
}

// Register adds tasks to the runtime. It must be called before the worker starts.
func (r *Runtime) Register(tasks ...Task) error {
	for _, t := range tasks {
		if t.Name == "" || t.Run == nil {
			return fmt.Errorf("invalid task %q: name and run func are required", t.Name)
		}
		if _, ok := r.tasks[t.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name)
		}
		r.tasks[t.Name] = t
	}
	return nil
}

// Names returns the registered task names, sorted
func (r *Runtime) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the task named by msg. On success the next chain step is
// published before Execute returns, so acknowledging the delivery afterwards
// never loses the continuation. A duplicate invocation skipped by the guard
// returns nil without publishing anything.
func (r *Runtime) Execute(ctx context.Context, msg *task.Message) error {
	t, ok := r.tasks[msg.Task]
	if !ok {
		r.metrics.TaskExecuted(msg.Task, metrics.OutcomeUnknown, 0)
		return unknownTask(msg.Task)
	}

	start := time.Now()
	run := func(ctx context.Context) error {
		result, err := t.Run(ctx, msg.Args)
		if err != nil {
			return err
		}
		return r.continueChain(ctx, msg, result)
	}

	var err error
	if t.Once && r.guard != nil {
		keyArgs := msg.Args
		if t.KeyFunc != nil {
			keyArgs = t.KeyFunc(msg)
		}

		var executed bool
		executed, err = r.guard.Do(ctx, r.guard.Key(t.Name, keyArgs), run)
		if err == nil && !executed {
			r.logger.Info("Duplicate task delivery skipped",
				slog.String("task", t.Name),
				slog.String("message_id", msg.ID),
			)
			r.metrics.TaskExecuted(t.Name, metrics.OutcomeSkipped, 0)
			return nil
		}
	} else {
		err = run(ctx)
	}

	elapsed := time.Since(start).Seconds()
	if err != nil {
		r.metrics.TaskExecuted(t.Name, metrics.OutcomeFailure, elapsed)
		if errors.Is(err, task.ErrMalformedMessage) {
			return fmt.Errorf("task %s rejected arguments: %w", t.Name, err)
		}
		return NewRetryableError(fmt.Errorf("task %s failed: %w", t.Name, err))
	}

	r.metrics.TaskExecuted(t.Name, metrics.OutcomeSuccess, elapsed)
	return nil
}

func (r *Runtime) continueChain(ctx context.Context, msg *task.Message, result any) error {
	if len(msg.Chain) == 0 {
		return nil
	}

	raw, err := encodeResult(result)
	if err != nil {
		return err
	}

	next := msg.Next(raw)
	if _, err := r.submitter.Submit(ctx, next); err != nil {
		return fmt.Errorf("failed to publish chain continuation %s: %w", next.Task, err)
	}

	r.logger.Debug("Chain continuation published",
		slog.String("task", msg.Task),
		slog.String("next_task", next.Task),
		slog.String("next_message_id", next.ID),
	)
	return nil
}

// MessageIDKey identifies an invocation by its message id, so only
// redeliveries of the same message count as duplicates
func MessageIDKey(msg *task.Message) []json.RawMessage {
	id, _ := json.Marshal(msg.ID)
	return []json.RawMessage{id}
}

func encodeResult(result any) (json.RawMessage, error) {
	if raw, ok := result.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task result: %w", err)
	}
	return b, nil
}
