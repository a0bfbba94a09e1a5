package topology

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue receives tasks that are not mapped to a worker
const DefaultQueue = "task_manage"

// ErrDuplicateQueue is returned when two names map to the same queue identity
var ErrDuplicateQueue = errors.New("duplicate queue")

// Binding is one exchange -> queue route
type Binding struct {
	Queue      string `json:"queue"`
	Exchange   string `json:"exchange"`
	RoutingKey string `json:"routing_key"`
}

// Topology is the set of bindings derived at startup. It is never mutated after Build.
type Topology struct {
	bindings map[string]Binding
	def      Binding
}

// Build derives one direct exchange, queue and routing key per name, each
// equal to the name, plus the default queue. Exact duplicates in names are
// collapsed; distinct names that normalize to the same queue are rejected.
func Build(defaultQueue string, names ...string) (*Topology, error) {
	if defaultQueue == "" {
		defaultQueue = DefaultQueue
	}

	t := &Topology{
		bindings: make(map[string]Binding, len(names)),
		def:      bindingFor(strings.TrimSpace(defaultQueue)),
	}

	seen := map[string]string{normalize(defaultQueue): defaultQueue}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, fmt.Errorf("topology: empty task name")
		}
		if _, ok := t.bindings[name]; ok {
			continue
		}

		key := normalize(name)
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %q and %q both map to queue %q", ErrDuplicateQueue, prev, name, key)
		}
		seen[key] = name
		t.bindings[name] = bindingFor(name)
	}

	return t, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func bindingFor(name string) Binding {
	return Binding{Queue: name, Exchange: name, RoutingKey: name}
}

// Route returns the binding for a task name, or the default binding for names
// without one
func (t *Topology) Route(taskName string) Binding {
	if b, ok := t.bindings[taskName]; ok {
		return b
	}
	return t.def
}

// Lookup returns the binding of a task name without falling back to the default
func (t *Topology) Lookup(taskName string) (Binding, bool) {
	b, ok := t.bindings[taskName]
	return b, ok
}

// Default returns the default binding
func (t *Topology) Default() Binding {
	return t.def
}

// Bindings returns every binding sorted by queue name, default queue last
func (t *Topology) Bindings() []Binding {
	out := make([]Binding, 0, len(t.bindings)+1)
	for _, b := range t.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Queue < out[j].Queue })
	return append(out, t.def)
}

// Queues returns the queue names of every binding
func (t *Topology) Queues() []string {
	bindings := t.Bindings()
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.Queue
	}
	return out
}

// Declarer is the subset of *amqp.Channel used to declare the topology
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare creates every exchange, queue and binding on the broker
func (t *Topology) Declare(ch Declarer) error {
	for _, b := range t.Bindings() {
		err := ch.ExchangeDeclare(
			b.Exchange,          // name
			amqp.ExchangeDirect, // type
			true,                // durable
			false,               // auto-deleted
			false,               // internal
			false,               // no-wait
			nil,                 // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", b.Exchange, err)
		}

		_, err = ch.QueueDeclare(
			b.Queue, // name
			true,    // durable
			false,   // delete when unused
			false,   // exclusive
			false,   // no-wait
			nil,     // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}

		err = ch.QueueBind(
			b.Queue,      // queue name
			b.RoutingKey, // routing key
			b.Exchange,   // exchange
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}
	}

	return nil
}

// String renders the topology for startup logs
func (t *Topology) String() string {
	var b strings.Builder
	for _, binding := range t.Bindings() {
		fmt.Fprintf(&b, "%s (direct) -> %s [routing: %s]\n", binding.Exchange, binding.Queue, binding.RoutingKey)
	}
	return b.String()
}
