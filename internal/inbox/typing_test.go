package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PaulBabatuyi/inboxd/internal/push"
)

func TestTypingRelay(t *testing.T) {
	h := newHarness(t, Config{})
	bob := h.connect("bob")

	h.svc.StartTyping("alice", "bob")
	h.svc.StopTyping("alice", "bob")
	// offline target and self are silent no-ops
	h.svc.StartTyping("bob", "carol")
	h.svc.StartTyping("bob", "bob")

	start := bob.named(push.EventTypingStart)
	stop := bob.named(push.EventTypingStop)
	if assert.Len(t, start, 1) {
		assert.Equal(t, push.UserRef{UserID: "alice"}, start[0].Payload)
	}
	assert.Len(t, stop, 1)
}
