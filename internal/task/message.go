package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Internal task names served by the orchestrator itself
const (
	CreatorTask       = "task.task_creator"
	ResultHandlerTask = "task.result_handler"
)

// ErrMalformedMessage is returned when a broker body cannot be decoded into a Message
var ErrMalformedMessage = errors.New("malformed task message")

// Signature names a task and the arguments it will be invoked with
type Signature struct {
	Task string            `json:"task"`
	Args []json.RawMessage `json:"args"`
}

// Message is the envelope published to the broker. Chain holds the
// continuations to run, in order, once Task completes: the result of Task is
// prepended to the args of Chain[0].
type Message struct {
	ID        string            `json:"id"`
	Task      string            `json:"task"`
	Args      []json.RawMessage `json:"args"`
	Chain     []Signature       `json:"chain,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMessage creates a message with a fresh id
func NewMessage(name string, args []json.RawMessage, chain ...Signature) *Message {
	if args == nil {
		args = []json.RawMessage{}
	}
	return &Message{
		ID:        uuid.NewString(),
		Task:      name,
		Args:      args,
		Chain:     chain,
		Timestamp: time.Now().UTC(),
	}
}

// Next builds the continuation message for result, or nil when the chain is exhausted
func (m *Message) Next(result json.RawMessage) *Message {
	if len(m.Chain) == 0 {
		return nil
	}

	if len(result) == 0 {
		result = json.RawMessage("null")
	}

	head := m.Chain[0]
	args := make([]json.RawMessage, 0, len(head.Args)+1)
	args = append(args, result)
	args = append(args, head.Args...)

	var rest []Signature
	if len(m.Chain) > 1 {
		rest = append(rest, m.Chain[1:]...)
	}

	return NewMessage(head.Task, args, rest...)
}

// Encode serializes the message for publishing
func (m *Message) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task message: %w", err)
	}
	return body, nil
}

// Decode parses a broker body
func Decode(body []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Task == "" {
		return nil, fmt.Errorf("%w: missing task name", ErrMalformedMessage)
	}
	return &m, nil
}

// EncodeArgs marshals each value into a positional argument. json.RawMessage
// values are passed through unchanged.
func EncodeArgs(values ...any) ([]json.RawMessage, error) {
	args := make([]json.RawMessage, 0, len(values))
	for i, v := range values {
		if raw, ok := v.(json.RawMessage); ok {
			args = append(args, raw)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
		args = append(args, b)
	}
	return args, nil
}

// DecodeArg unmarshals the positional argument at index i into v
func DecodeArg(args []json.RawMessage, i int, v any) error {
	if i >= len(args) {
		return fmt.Errorf("%w: missing argument %d", ErrMalformedMessage, i)
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return fmt.Errorf("%w: argument %d: %v", ErrMalformedMessage, i, err)
	}
	return nil
}
