package task

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_Next(t *testing.T) {
	args, err := EncodeArgs("rec-1", 3)
	require.NoError(t, err)

	msg := NewMessage("task.echo", args,
		Signature{Task: ResultHandlerTask, Args: []json.RawMessage{json.RawMessage(`"task.echo"`), json.RawMessage(`"rec-1"`), json.RawMessage(`10`)}},
		Signature{Task: "task.audit"},
	)

	next := msg.Next(json.RawMessage(`{"num":3}`))
	require.NotNil(t, next)

	assert.Equal(t, ResultHandlerTask, next.Task)
	assert.NotEqual(t, msg.ID, next.ID)
	require.Len(t, next.Args, 4)
	assert.JSONEq(t, `{"num":3}`, string(next.Args[0]))
	assert.JSONEq(t, `"rec-1"`, string(next.Args[2]))
	require.Len(t, next.Chain, 1)
	assert.Equal(t, "task.audit", next.Chain[0].Task)

	last := next.Next(nil)
	require.NotNil(t, last)
	assert.Equal(t, []json.RawMessage{json.RawMessage("null")}, last.Args)
	assert.Nil(t, last.Next(nil))
}

func TestMessage_EncodeDecode(t *testing.T) {
	msg := NewMessage("task.echo", nil, Signature{Task: ResultHandlerTask})
	body, err := msg.Encode()
	require.NoError(t, err)

	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, "task.echo", got.Task)
	assert.Empty(t, got.Args)
	assert.Len(t, got.Chain, 1)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{`},
		{name: "missing task", body: `{"id":"x","args":[]}`},
		{name: "args not array", body: `{"task":"task.echo","args":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestEncodeArgs(t *testing.T) {
	args, err := EncodeArgs("a", 10, json.RawMessage(`{"k":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, []json.RawMessage{
		json.RawMessage(`"a"`), json.RawMessage(`10`), json.RawMessage(`{"k":1}`), json.RawMessage(`null`),
	}, args)

	_, err = EncodeArgs(make(chan int))
	assert.Error(t, err)
}

func TestDecodeArg(t *testing.T) {
	args := []json.RawMessage{json.RawMessage(`"rec-1"`), json.RawMessage(`"x"`)}

	var id string
	require.NoError(t, DecodeArg(args, 0, &id))
	assert.Equal(t, "rec-1", id)

	var n int
	assert.ErrorIs(t, DecodeArg(args, 1, &n), ErrMalformedMessage)
	assert.ErrorIs(t, DecodeArg(args, 5, &n), ErrMalformedMessage)
}
