package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cuongbtq/task-manage/internal/lease"
	"github.com/cuongbtq/task-manage/internal/task"
	"github.com/cuongbtq/task-manage/internal/topology"
	"github.com/cuongbtq/task-manage/shared/logger"
	goredis "github.com/redis/go-redis/v9"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange   string
	routingKey string
	messageID  string
	body       []byte
}

type fakeSender struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeSender) Publish(_ context.Context, exchange, routingKey, messageID string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, routingKey, messageID, body})
	return nil
}

func (f *fakeSender) messages(t *testing.T) []*task.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*task.Message, 0, len(f.sent))
	for _, p := range f.sent {
		msg, err := task.Decode(p.body)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

type ackRecord struct {
	acked   bool
	nacked  bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records map[uint64]*ackRecord
	done    chan uint64
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{records: make(map[uint64]*ackRecord), done: make(chan uint64, 16)}
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	f.records[tag] = &ackRecord{acked: true}
	f.mu.Unlock()
	f.done <- tag
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	f.records[tag] = &ackRecord{nacked: true, requeue: requeue}
	f.mu.Unlock()
	f.done <- tag
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) get(tag uint64) *ackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[tag]
}

func newTestGuard(t *testing.T) *lease.Guard {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	g, err := lease.NewGuard(lease.NewRedisStore(client), lease.Config{TTL: time.Minute}, logger.Discard())
	require.NoError(t, err)
	return g
}

func newTestRuntime(t *testing.T, sender *fakeSender, tasks ...Task) *Runtime {
	t.Helper()
	topo, err := topology.Build("", "task.echo", task.ResultHandlerTask)
	require.NoError(t, err)

	rt := NewRuntime(NewPublisher(sender, topo, logger.Discard()), newTestGuard(t), nil, logger.Discard())
	require.NoError(t, rt.Register(tasks...))
	return rt
}

func echoTask() Task {
	return Task{
		Name: "task.echo",
		Once: true,
		Run: func(_ context.Context, args []json.RawMessage) (any, error) {
			return args, nil
		},
	}
}

func TestPublisher_Submit_RoutesByTaskName(t *testing.T) {
	sender := &fakeSender{}
	topo, err := topology.Build("", "task.echo")
	require.NoError(t, err)
	p := NewPublisher(sender, topo, logger.Discard())

	id, err := p.Submit(context.Background(), task.NewMessage("task.echo", nil))
	require.NoError(t, err)
	_, err = p.Submit(context.Background(), task.NewMessage("task.unrouted", nil))
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, id, sender.sent[0].messageID)
	assert.Equal(t, "task.echo", sender.sent[0].exchange)
	assert.Equal(t, "task.echo", sender.sent[0].routingKey)
	assert.Equal(t, topology.DefaultQueue, sender.sent[1].routingKey)

	sender.err = errors.New("channel closed")
	_, err = p.Submit(context.Background(), task.NewMessage("task.echo", nil))
	assert.Error(t, err)
}

func TestRuntime_Register_Duplicate(t *testing.T) {
	rt := NewRuntime(nil, nil, nil, logger.Discard())
	require.NoError(t, rt.Register(echoTask()))
	assert.ErrorIs(t, rt.Register(echoTask()), ErrDuplicateTask)
	assert.Error(t, rt.Register(Task{Name: "task.nil"}))
	assert.Equal(t, []string{"task.echo"}, rt.Names())
}

func TestRuntime_Execute_PublishesChainContinuation(t *testing.T) {
	sender := &fakeSender{}
	rt := newTestRuntime(t, sender, echoTask())

	args, err := task.EncodeArgs("rec-1", "hello")
	require.NoError(t, err)
	handlerArgs, err := task.EncodeArgs("task.echo", "rec-1", 10)
	require.NoError(t, err)

	msg := task.NewMessage("task.echo", args, task.Signature{Task: task.ResultHandlerTask, Args: handlerArgs})
	require.NoError(t, rt.Execute(context.Background(), msg))

	sent := sender.messages(t)
	require.Len(t, sent, 1)
	assert.Equal(t, task.ResultHandlerTask, sent[0].Task)
	require.Len(t, sent[0].Args, 4)
	assert.JSONEq(t, `["rec-1","hello"]`, string(sent[0].Args[0]))
	assert.JSONEq(t, `"rec-1"`, string(sent[0].Args[2]))
	assert.Empty(t, sent[0].Chain)
	assert.Equal(t, task.ResultHandlerTask, sender.sent[0].routingKey)
}

func TestRuntime_Execute_DuplicateSkipped(t *testing.T) {
	sender := &fakeSender{}
	calls := 0
	rt := newTestRuntime(t, sender, Task{
		Name: "task.echo",
		Once: true,
		Run: func(_ context.Context, args []json.RawMessage) (any, error) {
			calls++
			return "ok", nil
		},
	})

	args, _ := task.EncodeArgs("rec-1")
	msg := task.NewMessage("task.echo", args, task.Signature{Task: task.ResultHandlerTask})

	require.NoError(t, rt.Execute(context.Background(), msg))
	require.NoError(t, rt.Execute(context.Background(), msg))

	assert.Equal(t, 1, calls)
	assert.Len(t, sender.sent, 1, "a skipped duplicate publishes no continuation")
}

func TestRuntime_Execute_MessageIDKey(t *testing.T) {
	sender := &fakeSender{}
	calls := 0
	rt := newTestRuntime(t, sender, Task{
		Name:    "task.echo",
		Once:    true,
		KeyFunc: MessageIDKey,
		Run: func(_ context.Context, args []json.RawMessage) (any, error) {
			calls++
			return nil, nil
		},
	})

	args, _ := task.EncodeArgs("same")
	first := task.NewMessage("task.echo", args)
	second := task.NewMessage("task.echo", args)

	require.NoError(t, rt.Execute(context.Background(), first))
	require.NoError(t, rt.Execute(context.Background(), first))
	require.NoError(t, rt.Execute(context.Background(), second))

	assert.Equal(t, 2, calls, "identical args in distinct messages both run")
}

func TestRuntime_Execute_FailureReleasesLease(t *testing.T) {
	sender := &fakeSender{}
	fail := true
	calls := 0
	rt := newTestRuntime(t, sender, Task{
		Name: "task.echo",
		Once: true,
		Run: func(_ context.Context, args []json.RawMessage) (any, error) {
			calls++
			if fail {
				return nil, errors.New("search backend unavailable")
			}
			return "ok", nil
		},
	})

	args, _ := task.EncodeArgs("rec-1")
	msg := task.NewMessage("task.echo", args)

	err := rt.Execute(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, shouldRequeue(err))

	fail = false
	require.NoError(t, rt.Execute(context.Background(), msg))
	assert.Equal(t, 2, calls)
}

func TestRuntime_Execute_PublishFailureIsRetried(t *testing.T) {
	sender := &fakeSender{err: errors.New("nacked")}
	calls := 0
	rt := newTestRuntime(t, sender, Task{
		Name: "task.echo",
		Once: true,
		Run: func(_ context.Context, args []json.RawMessage) (any, error) {
			calls++
			return "ok", nil
		},
	})

	args, _ := task.EncodeArgs("rec-1")
	msg := task.NewMessage("task.echo", args, task.Signature{Task: task.ResultHandlerTask})

	err := rt.Execute(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, shouldRequeue(err))

	sender.err = nil
	require.NoError(t, rt.Execute(context.Background(), msg))
	assert.Equal(t, 2, calls)
	assert.Len(t, sender.sent, 1)
}

func TestRuntime_Execute_Errors(t *testing.T) {
	rt := newTestRuntime(t, &fakeSender{}, Task{
		Name: "task.strict",
		Run: func(_ context.Context, args []json.RawMessage) (any, error) {
			var n int
			if err := task.DecodeArg(args, 0, &n); err != nil {
				return nil, err
			}
			return n, nil
		},
	})

	err := rt.Execute(context.Background(), task.NewMessage("task.missing", nil))
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.False(t, shouldRequeue(err))

	err = rt.Execute(context.Background(), task.NewMessage("task.strict", []json.RawMessage{json.RawMessage(`"x"`)}))
	assert.ErrorIs(t, err, task.ErrMalformedMessage)
	assert.False(t, shouldRequeue(err))
}

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retryable", err: NewRetryableError(errors.New("timeout")), want: true},
		{name: "unknown task", err: unknownTask("x"), want: false},
		{name: "retryable wrapping malformed", err: NewRetryableError(task.ErrMalformedMessage), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}

type fakeChannel struct {
	mu         sync.Mutex
	queues     map[string]chan amqp.Delivery
	prefetch   int
	global     bool
	closed     bool
	consumeErr error
}

func newFakeChannel(queues ...string) *fakeChannel {
	ch := &fakeChannel{queues: make(map[string]chan amqp.Delivery)}
	for _, q := range queues {
		ch.queues[q] = make(chan amqp.Delivery, 4)
	}
	return ch
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.prefetch = prefetchCount
	f.global = global
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	if autoAck {
		return nil, errors.New("auto-ack not expected")
	}
	return f.queues[queue], nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func delivery(ack amqp.Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: body}
}

func waitTag(t *testing.T, ack *fakeAcknowledger) uint64 {
	t.Helper()
	select {
	case tag := <-ack.done:
		return tag
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ack")
		return 0
	}
}

func TestWorker_ConsumesAndAcknowledges(t *testing.T) {
	sender := &fakeSender{}
	rt := newTestRuntime(t, sender, echoTask())

	ch := newFakeChannel("task.echo", task.ResultHandlerTask)
	w := NewWorker(&WorkerConfig{
		Logger:      logger.Discard(),
		OpenChannel: func() (Channel, error) { return ch, nil },
		Runtime:     rt,
		Queues:      []string{"task.echo", task.ResultHandlerTask},
		Concurrency: 1,
		WorkerID:    "test",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	assert.Equal(t, 1, ch.prefetch)
	assert.True(t, ch.global)

	ack := newFakeAcknowledger()
	args, _ := task.EncodeArgs("rec-1")
	body, err := task.NewMessage("task.echo", args).Encode()
	require.NoError(t, err)

	ch.queues["task.echo"] <- delivery(ack, 1, body)
	assert.Equal(t, uint64(1), waitTag(t, ack))
	assert.True(t, ack.get(1).acked)

	ch.queues[task.ResultHandlerTask] <- delivery(ack, 2, []byte(`not json`))
	assert.Equal(t, uint64(2), waitTag(t, ack))
	assert.True(t, ack.get(2).nacked)
	assert.False(t, ack.get(2).requeue)

	unknown, _ := task.NewMessage("task.unknown", nil).Encode()
	ch.queues["task.echo"] <- delivery(ack, 3, unknown)
	assert.Equal(t, uint64(3), waitTag(t, ack))
	assert.False(t, ack.get(3).requeue)

	w.Stop()
	assert.True(t, ch.closed)
}

func TestWorker_FailedTaskIsRequeued(t *testing.T) {
	rt := newTestRuntime(t, &fakeSender{}, Task{
		Name: "task.echo",
		Run: func(context.Context, []json.RawMessage) (any, error) {
			return nil, errors.New("graph database timeout")
		},
	})

	ch := newFakeChannel("task.echo")
	w := NewWorker(&WorkerConfig{
		Logger:      logger.Discard(),
		OpenChannel: func() (Channel, error) { return ch, nil },
		Runtime:     rt,
		Queues:      []string{"task.echo"},
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	ack := newFakeAcknowledger()
	body, _ := task.NewMessage("task.echo", nil).Encode()
	ch.queues["task.echo"] <- delivery(ack, 7, body)

	assert.Equal(t, uint64(7), waitTag(t, ack))
	rec := ack.get(7)
	assert.True(t, rec.nacked)
	assert.True(t, rec.requeue)
}

func TestWorker_StartErrors(t *testing.T) {
	w := NewWorker(&WorkerConfig{Logger: logger.Discard()})
	assert.Error(t, w.Start(context.Background()))

	ch := newFakeChannel("task.echo")
	ch.consumeErr = errors.New("queue not found")
	w = NewWorker(&WorkerConfig{
		Logger:      logger.Discard(),
		OpenChannel: func() (Channel, error) { return ch, nil },
		Queues:      []string{"task.echo"},
	})
	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue not found")
	assert.True(t, ch.closed)
}

func TestWorker_TaskTimeoutRequeues(t *testing.T) {
	rt := newTestRuntime(t, &fakeSender{}, Task{
		Name: "task.echo",
		Run: func(ctx context.Context, _ []json.RawMessage) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	ch := newFakeChannel("task.echo")
	w := NewWorker(&WorkerConfig{
		Logger:      logger.Discard(),
		OpenChannel: func() (Channel, error) { return ch, nil },
		Runtime:     rt,
		Queues:      []string{"task.echo"},
		TaskTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	ack := newFakeAcknowledger()
	body, _ := task.NewMessage("task.echo", nil).Encode()
	ch.queues["task.echo"] <- delivery(ack, 9, body)

	assert.Equal(t, uint64(9), waitTag(t, ack))
	assert.True(t, ack.get(9).requeue)
}

func TestWorker_DoneWhenDeliveriesClose(t *testing.T) {
	rt := newTestRuntime(t, &fakeSender{}, echoTask())

	ch := newFakeChannel("task.echo")
	w := NewWorker(&WorkerConfig{
		Logger:      logger.Discard(),
		OpenChannel: func() (Channel, error) { return ch, nil },
		Runtime:     rt,
		Queues:      []string{"task.echo"},
		Concurrency: 2,
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	select {
	case <-w.Done():
		t.Fatal("worker reported done while consuming")
	default:
	}

	// connection loss closes the consumer delivery channels
	close(ch.queues["task.echo"])

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not report done after its deliveries closed")
	}
}
