package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel used by a consumer slot
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// ChannelOpener opens a dedicated broker channel
type ChannelOpener func() (Channel, error)

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Logger      *slog.Logger
	OpenChannel ChannelOpener
	Runtime     *Runtime
	Queues      []string
	Concurrency int
	Prefetch    int
	WorkerID    string
	// TaskTimeout bounds one execution; zero means no limit
	TaskTimeout time.Duration
}

// Worker consumes task queues and executes deliveries on the runtime. Each
// consumer slot owns one channel, so with a prefetch of 1 a slot holds at most
// one unacknowledged delivery at a time.
type Worker struct {
	logger      *slog.Logger
	openChannel ChannelOpener
	runtime     *Runtime
	queues      []string
	concurrency int
	prefetch    int
	workerID    string
	taskTimeout time.Duration

	wg       sync.WaitGroup
	done     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	channels []Channel
}

// NewWorker creates a new worker instance
func NewWorker(cfg *WorkerConfig) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Worker{
		logger:      cfg.Logger,
		openChannel: cfg.OpenChannel,
		runtime:     cfg.Runtime,
		queues:      cfg.Queues,
		concurrency: concurrency,
		prefetch:    prefetch,
		workerID:    cfg.WorkerID,
		taskTimeout: cfg.TaskTimeout,
		done:        make(chan struct{}),
		stopChan:    make(chan struct{}),
	}
}

// Start opens the consumer slots and returns once every slot is consuming
func (w *Worker) Start(ctx context.Context) error {
	if len(w.queues) == 0 {
		return fmt.Errorf("worker has no queues to consume")
	}

	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch", w.prefetch),
		slog.Any("queues", w.queues),
	)

	for i := 0; i < w.concurrency; i++ {
		deliveries, err := w.setupConsumer(ctx, i)
		if err != nil {
			w.Stop()
			return fmt.Errorf("failed to start consumer slot %d: %w", i, err)
		}

		w.wg.Add(1)
		go w.slotLoop(ctx, i, deliveries)
	}

	go func() {
		w.wg.Wait()
		close(w.done)
	}()

	w.logger.Info("Worker started",
		slog.Int("slots", w.concurrency),
	)
	return nil
}

// Done is closed once every consumer slot has exited. Before Stop this means
// the broker closed the delivery channels and nothing is being consumed.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stop gracefully stops the worker. An in-flight delivery finishes before its slot exits.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
		w.wg.Wait()

		w.mu.Lock()
		defer w.mu.Unlock()
		for _, ch := range w.channels {
			if err := ch.Close(); err != nil {
				w.logger.Warn("Failed to close consumer channel",
					slog.String("error", err.Error()),
				)
			}
		}
		w.channels = nil
		w.logger.Info("Worker stopped")
	})
}
