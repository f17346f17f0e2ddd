package push

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameOfEncodesPayload(t *testing.T) {
	f, err := FrameOf(Event{Name: EventTypingStart, Payload: UserRef{UserID: "alice"}})
	require.NoError(t, err)
	assert.Equal(t, EventTypingStart, f.Event)
	assert.Zero(t, f.Ack)
	assert.JSONEq(t, `{"userId":"alice"}`, string(f.Data))

	var ref UserRef
	require.NoError(t, f.Decode(&ref))
	assert.Equal(t, "alice", ref.UserID)
}

func TestFrameWireShape(t *testing.T) {
	f, err := NewFrame(EventAck, 7, Reply{Success: true})
	require.NoError(t, err)
	raw, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ack","ack":7,"data":{"success":true}}`, string(raw))
}

func TestNewFrameRequiresEvent(t *testing.T) {
	_, err := NewFrame("", 1, nil)
	require.ErrorIs(t, err, ErrEmptyEvent)

	f, err := NewFrame(RequestUnreadCount, 2, nil)
	require.NoError(t, err)
	assert.Nil(t, f.Data)
	var v struct{}
	assert.NoError(t, f.Decode(&v))
}
