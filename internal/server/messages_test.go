package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerMessage(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	msg := NewServerMessage(EventUserOnline, UserPresence{UserId: "u1"})

	assert.Equal(t, EventUserOnline, msg.Event)
	assert.Equal(t, UserPresence{UserId: "u1"}, msg.Data)
	assert.True(t, msg.Timestamp.After(before), "expected timestamp to be set")
	assert.Empty(t, msg.SkipUser)
}

func TestErrorMessages(t *testing.T) {
	tcases := []struct {
		name     string
		msg      *ServerMessage
		expected string
	}{
		{name: "invalid message", msg: ErrInvalidMessage(), expected: "invalid message format"},
		{name: "not identified", msg: ErrNotIdentified(), expected: "not identified"},
		{name: "forbidden", msg: ErrForbidden(), expected: "forbidden"},
		{name: "internal", msg: ErrInternalError(), expected: "internal server error"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, EventError, tc.msg.Event)
			assert.Equal(t, ErrorMessage{Message: tc.expected}, tc.msg.Data)
		})
	}
}

func TestClientMessageDecoding(t *testing.T) {
	raw := `{"event":"call_response","data":{"callId":"c1","callerId":"u1","receiverId":"u2","accepted":false,"payload":{"reason":"busy"}}}`

	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, EventCallResponse, msg.Event)

	var resp CallResponse
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, "c1", resp.CallId)
	assert.False(t, resp.Accepted)
	assert.JSONEq(t, `{"reason":"busy"}`, string(resp.Payload))
}

func TestNow(t *testing.T) {
	now := Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond), "expected millisecond precision")
}
