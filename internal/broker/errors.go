package broker

import (
	"errors"
	"fmt"

	"github.com/cuongbtq/task-manage/internal/task"
)

var (
	// ErrUnknownTask is returned when a delivery names a task this runtime does not serve
	ErrUnknownTask = errors.New("unknown task")

	// ErrDuplicateTask is returned when two tasks are registered under one name
	ErrDuplicateTask = errors.New("task already registered")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// shouldRequeue determines if a delivery should be requeued based on the error type
func shouldRequeue(err error) bool {
	// a redelivery of these would fail the same way
	if errors.Is(err, ErrUnknownTask) || errors.Is(err, task.ErrMalformedMessage) {
		return false
	}

	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

func unknownTask(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownTask, name)
}
