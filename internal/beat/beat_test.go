package beat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/task-manage/internal/registry"
	"github.com/cuongbtq/task-manage/internal/task"
	"github.com/cuongbtq/task-manage/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	msgs []*task.Message
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, msg *task.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.msgs = append(f.msgs, msg)
	return msg.ID, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Build(registry.Contribution{Module: "dataprocess", Workers: []registry.Descriptor{{
		Name:  "task.db.insert_test_data",
		Entry: func(context.Context, string, []json.RawMessage) (any, error) { return nil, nil },
	}}})
	require.NoError(t, err)
	return reg
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		errText  string
	}{
		{
			name:     "invalid cron",
			schedule: Schedule{Name: "bad", Cron: "every minute", Worker: "task.db.insert_test_data"},
			errText:  "invalid cron expression",
		},
		{
			name:     "seconds field not accepted",
			schedule: Schedule{Name: "bad", Cron: "0 0 2 * * *", Worker: "task.db.insert_test_data"},
			errText:  "invalid cron expression",
		},
		{
			name:     "unknown worker",
			schedule: Schedule{Name: "ghost", Cron: "0 2 * * *", Worker: "task.ghost"},
			errText:  "worker not found",
		},
		{
			name:     "unencodable args",
			schedule: Schedule{Name: "chan", Cron: "0 2 * * *", Worker: "task.db.insert_test_data", Args: []any{make(chan int)}},
			errText:  "failed to encode argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{
				Schedules: []Schedule{tt.schedule},
				Registry:  testRegistry(t),
				Submitter: &fakeSubmitter{},
				Logger:    logger.Discard(),
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestTrigger_PublishesCreatorRequest(t *testing.T) {
	sub := &fakeSubmitter{}
	s, err := New(Config{
		Schedules: []Schedule{{Name: "nightly", Cron: "0 2 * * *", Worker: "task.db.insert_test_data", Args: []any{100}}},
		Registry:  testRegistry(t),
		Submitter: sub,
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)

	id, err := s.Trigger(context.Background(), "nightly")
	require.NoError(t, err)

	require.Len(t, sub.msgs, 1)
	msg := sub.msgs[0]
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, task.CreatorTask, msg.Task)

	args, _ := json.Marshal(msg.Args)
	assert.JSONEq(t, `["task.db.insert_test_data",10,100]`, string(args))

	_, err = s.Trigger(context.Background(), "missing")
	assert.Error(t, err)

	sub.err = errors.New("broker down")
	_, err = s.Trigger(context.Background(), "nightly")
	assert.ErrorContains(t, err, "broker down")
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := New(Config{
		Schedules: []Schedule{{Name: "nightly", Cron: "0 2 * * *", Worker: "task.db.insert_test_data"}},
		Registry:  testRegistry(t),
		Submitter: &fakeSubmitter{},
		Location:  time.UTC,
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return !s.Next()["nightly"].IsZero()
	}, time.Second, 10*time.Millisecond)

	next := s.Next()["nightly"]
	assert.Equal(t, 2, next.Hour())
	assert.Equal(t, 0, next.Minute())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
