package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer opens a channel for slot, applies QoS and merges the
// deliveries of every configured queue into one stream
func (w *Worker) setupConsumer(ctx context.Context, slot int) (<-chan amqp.Delivery, error) {
	ch, err := w.openChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	w.mu.Lock()
	w.channels = append(w.channels, ch)
	w.mu.Unlock()

	// global: true applies the limit to the whole channel, which is shared by
	// the consumers of every queue this slot serves
	if err := ch.Qos(
		w.prefetch, // prefetch count
		0,          // prefetch size
		true,       // global
	); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	sources := make([]<-chan amqp.Delivery, 0, len(w.queues))
	for _, queue := range w.queues {
		consumerTag := fmt.Sprintf("%s-%d-%s", w.workerID, slot, queue)

		// auto-ack: false, acknowledgement follows the task outcome
		deliveries, err := ch.Consume(
			queue,       // queue
			consumerTag, // consumer
			false,       // auto-ack
			false,       // exclusive
			false,       // no-local
			false,       // no-wait
			nil,         // args
		)
		if err != nil {
			return nil, fmt.Errorf("failed to consume queue %s: %w", queue, err)
		}
		sources = append(sources, deliveries)

		w.logger.Debug("Consumer registered",
			slog.String("consumer_tag", consumerTag),
			slog.String("queue", queue),
		)
	}

	return w.merge(ctx, sources), nil
}

// merge fans in several delivery channels. The output closes once every source
// has closed or the worker stops.
func (w *Worker) merge(ctx context.Context, sources []<-chan amqp.Delivery) <-chan amqp.Delivery {
	out := make(chan amqp.Delivery)

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src <-chan amqp.Delivery) {
			defer wg.Done()
			for {
				select {
				case <-w.stopChan:
					return
				case <-ctx.Done():
					return
				case d, ok := <-src:
					if !ok {
						return
					}
					select {
					case out <- d:
					case <-w.stopChan:
						w.requeueOnShutdown(d)
						return
					case <-ctx.Done():
						w.requeueOnShutdown(d)
						return
					}
				}
			}
		}(src)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (w *Worker) requeueOnShutdown(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		w.logger.Error("Failed to NACK message on shutdown",
			slog.String("error", err.Error()),
		)
	}
}
