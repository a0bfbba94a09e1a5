package utility

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/task"
)

// Worker names
const (
	Echo  = "task.echo"
	Sleep = "task.utils.sleep"
)

// Contribution lists the utility workers. They have no post-processors.
func Contribution() registry.Contribution {
	return registry.Contribution{
		Module: "utility",
		Workers: []registry.Descriptor{
			{Name: Echo, Entry: echo},
			{Name: Sleep, Entry: sleep},
		},
	}
}

// echo returns its arguments unchanged
func echo(_ context.Context, _ string, args []json.RawMessage) (any, error) {
	if args == nil {
		args = []json.RawMessage{}
	}
	return args, nil
}

// sleep args: [seconds]. Returns early with an error if ctx ends first.
func sleep(ctx context.Context, _ string, args []json.RawMessage) (any, error) {
	var seconds float64
	if err := task.DecodeArg(args, 0, &seconds); err != nil {
		return nil, err
	}
	if seconds < 0 {
		return nil, fmt.Errorf("%w: seconds must not be negative", task.ErrMalformedMessage)
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]float64{"slept": seconds}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("sleep canceled: %w", ctx.Err())
	}
}
