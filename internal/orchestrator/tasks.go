package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cuongbtq/task-manage/internal/broker"
	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/task"
)

// Tasks returns the broker tasks served by a worker process: the creator,
// the result handler and one task per registered worker. All of them run
// under the idempotency guard. Creator requests are keyed by message id so
// that two requests with identical arguments each create a job.
func Tasks(reg *registry.Registry, creator *Creator, handler *ResultHandler) []broker.Task {
	tasks := []broker.Task{
		{Name: task.CreatorTask, Once: true, KeyFunc: broker.MessageIDKey, Run: creatorTask(creator)},
		{Name: task.ResultHandlerTask, Once: true, Run: resultHandlerTask(handler)},
	}

	for _, d := range reg.Descriptors() {
		tasks = append(tasks, broker.Task{
			Name: string(d.Name),
			Once: true,
			Run:  workerTask(d.Entry),
		})
	}

	return tasks
}

// TaskNames lists every task name a deployment routes, internal tasks first
func TaskNames(reg *registry.Registry) []string {
	return append([]string{task.CreatorTask, task.ResultHandlerTask}, reg.Names()...)
}

// creatorTask args: [workerName, terminalStatus, ...args]
func creatorTask(c *Creator) broker.TaskFunc {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		var workerName string
		var terminalStatus int
		if err := task.DecodeArg(args, 0, &workerName); err != nil {
			return nil, err
		}
		if err := task.DecodeArg(args, 1, &terminalStatus); err != nil {
			return nil, err
		}

		recordID, err := c.CreateRaw(ctx, workerName, terminalStatus, args[2:])
		if err != nil {
			// a request for an unregistered worker can never succeed on redelivery
			if errors.Is(err, registry.ErrWorkerNotFound) {
				return nil, fmt.Errorf("%w: %w", task.ErrMalformedMessage, err)
			}
			return nil, err
		}
		return map[string]string{"record_id": recordID}, nil
	}
}

// resultHandlerTask args: [resultData, workerName, recordID, status]
func resultHandlerTask(h *ResultHandler) broker.TaskFunc {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		var workerName, recordID string
		var status int
		if err := task.DecodeArg(args, 1, &workerName); err != nil {
			return nil, err
		}
		if err := task.DecodeArg(args, 2, &recordID); err != nil {
			return nil, err
		}
		if err := task.DecodeArg(args, 3, &status); err != nil {
			return nil, err
		}

		return nil, h.Handle(ctx, args[0], workerName, recordID, status)
	}
}

// workerTask args: [recordID, ...domainArgs]
func workerTask(entry registry.EntryPoint) broker.TaskFunc {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		var recordID string
		if err := task.DecodeArg(args, 0, &recordID); err != nil {
			return nil, err
		}
		return entry(ctx, recordID, args[1:])
	}
}
