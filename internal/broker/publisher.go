package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/task-manage/internal/task"
	"github.com/cuongbtq/task-manage/internal/topology"
)

// Sender publishes a body to an exchange. *rabbitmq.Client satisfies it.
type Sender interface {
	Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error
}

// Submitter submits task messages and returns the broker task id
type Submitter interface {
	Submit(ctx context.Context, msg *task.Message) (string, error)
}

// Publisher routes task messages through the queue topology
type Publisher struct {
	sender   Sender
	topology *topology.Topology
	logger   *slog.Logger
}

// NewPublisher creates a new Publisher
func NewPublisher(sender Sender, topo *topology.Topology, logger *slog.Logger) *Publisher {
	return &Publisher{
		sender:   sender,
		topology: topo,
		logger:   logger,
	}
}

// Submit publishes msg to the exchange bound to its task name. The message id
// is the broker task id.
func (p *Publisher) Submit(ctx context.Context, msg *task.Message) (string, error) {
	body, err := msg.Encode()
	if err != nil {
		return "", err
	}

	binding := p.topology.Route(msg.Task)
	if err := p.sender.Publish(ctx, binding.Exchange, binding.RoutingKey, msg.ID, body); err != nil {
		return "", fmt.Errorf("failed to submit task %s: %w", msg.Task, err)
	}

	p.logger.Debug("Task submitted",
		slog.String("task", msg.Task),
		slog.String("message_id", msg.ID),
		slog.String("queue", binding.Queue),
		slog.Int("chain_length", len(msg.Chain)),
	)

	return msg.ID, nil
}
