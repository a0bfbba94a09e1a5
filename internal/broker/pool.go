package broker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/task-manage/internal/task"
	amqp "github.com/rabbitmq/amqp091-go"
)

// slotLoop processes the deliveries of one consumer slot sequentially
func (w *Worker) slotLoop(ctx context.Context, slot int, deliveries <-chan amqp.Delivery) {
	defer w.wg.Done()

	w.logger.Info("Consumer slot started",
		slog.String("worker_id", w.workerID),
		slog.Int("slot", slot),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Consumer slot stopping - stopChan closed",
				slog.Int("slot", slot),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Consumer slot stopping - context canceled",
				slog.Int("slot", slot),
			)
			return

		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Delivery channel closed",
					slog.Int("slot", slot),
				)
				return
			}
			w.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery executes one delivery and acknowledges it according to the outcome
func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	msg, err := task.Decode(d.Body)
	if err != nil {
		w.logger.Error("Failed to parse task message",
			slog.String("error", err.Error()),
			slog.String("body", string(d.Body)),
		)
		// NACK without requeue - malformed messages go to the dead letter exchange if one is configured
		if nackErr := d.Nack(false, false); nackErr != nil {
			w.logger.Error("Failed to NACK malformed message",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	w.logger.Info("Task received",
		slog.String("task", msg.Task),
		slog.String("message_id", msg.ID),
		slog.Bool("redelivered", d.Redelivered),
	)

	execCtx := ctx
	if w.taskTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, w.taskTimeout)
		defer cancel()
	}

	if err := w.runtime.Execute(execCtx, msg); err != nil {
		requeue := shouldRequeue(err)
		w.logger.Error("Task failed",
			slog.String("task", msg.Task),
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)

		if nackErr := d.Nack(false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("message_id", msg.ID),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("message_id", msg.ID),
			slog.String("error", ackErr.Error()),
		)
		return
	}

	w.logger.Info("Task completed",
		slog.String("task", msg.Task),
		slog.String("message_id", msg.ID),
	)
}
