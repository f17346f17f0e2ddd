package inbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

func TestMarkReadIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	alice := h.connect("alice")
	h.store.Follow("alice", "bob")

	require.True(t, h.svc.SendMessage(ctx, "alice", text("bob", "one")).Success)
	require.True(t, h.svc.SendMessage(ctx, "alice", text("bob", "two")).Success)

	n, err := h.svc.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	acks := alice.named(push.EventReadAck)
	require.Len(t, acks, 1)
	assert.Equal(t, push.ReadAck{ReaderID: "bob", Count: 2}, acks[0].Payload)

	n, err = h.svc.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, alice.named(push.EventReadAck), 1)

	unread, err := h.store.CountUnread(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestMarkReadOnlyTouchesOneDirection(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.store.Follow("alice", "bob")

	require.True(t, h.svc.SendMessage(ctx, "alice", text("bob", "hi")).Success)
	require.True(t, h.svc.SendMessage(ctx, "bob", text("alice", "hey")).Success)

	_, err := h.svc.MarkRead(ctx, "bob", "alice")
	require.NoError(t, err)

	unread, err := h.store.CountUnread(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestMarkReadRejectsSelf(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.svc.MarkRead(context.Background(), "bob", "bob")
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestUnreadCounts(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	h.store.Follow("alice", "bob")

	require.True(t, h.svc.SendMessage(ctx, "alice", text("bob", "hi")).Success)
	require.True(t, h.svc.SendMessage(ctx, "carol", text("bob", "yo")).Success)
	_, err := h.svc.RaiseNotification(ctx, NotificationInput{UserID: "bob", Kind: data.NotifyFollow, Title: "carol followed you"})
	require.NoError(t, err)

	got, err := h.svc.UnreadCounts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, data.UnreadCounts{Messages: 2, Notifications: 1, Total: 3}, got)
}
