package inbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

func TestRaiseNotificationPushesToOnlineUser(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	bob := h.connect("bob")

	n, err := h.svc.RaiseNotification(ctx, NotificationInput{
		UserID:           "bob",
		Kind:             data.NotifyLike,
		Title:            "alice liked your post",
		Body:             "issue #12",
		RelatedUserID:    "alice",
		RelatedContentID: "post-12",
	})
	require.NoError(t, err)
	assert.False(t, n.ID.IsZero())
	assert.False(t, n.Read)

	got := bob.named(push.EventNotificationNew)
	require.Len(t, got, 1)
	assert.Equal(t, n.ID, got[0].Payload.(*data.Notification).ID)

	// offline targets still get the record
	_, err = h.svc.RaiseNotification(ctx, NotificationInput{UserID: "carol", Kind: data.NotifySystem, Title: "welcome"})
	require.NoError(t, err)
	page, err := h.svc.ListNotifications(ctx, "carol", "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func TestRaiseNotificationValidation(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	for name, in := range map[string]NotificationInput{
		"no user":  {Kind: data.NotifyLike, Title: "x"},
		"bad kind": {UserID: "bob", Kind: "poke", Title: "x"},
		"no title": {UserID: "bob", Kind: data.NotifyLike, Title: "  "},
	} {
		_, err := h.svc.RaiseNotification(ctx, in)
		assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err), name)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		kind := data.NotifyComment
		if i%2 == 0 {
			kind = data.NotifyFollow
		}
		n, err := h.svc.RaiseNotification(ctx, NotificationInput{UserID: "bob", Kind: kind, Title: fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
		ids = append(ids, n.ID.Hex())
	}

	page, err := h.svc.ListNotifications(ctx, "bob", "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "n4", page.Items[0].Title)

	page, err = h.svc.ListNotifications(ctx, "bob", "", 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "n0", page.Items[0].Title)

	follows, err := h.svc.ListNotifications(ctx, "bob", data.NotifyFollow, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), follows.Total)

	_, err = h.svc.ListNotifications(ctx, "bob", "poke", 1, 10)
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

	n, err := h.svc.MarkNotificationsRead(ctx, "bob", ids[:2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = h.svc.MarkNotificationsRead(ctx, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = h.svc.MarkNotificationsRead(ctx, "bob", []string{"not-hex"})
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

	require.NoError(t, h.svc.DeleteNotification(ctx, "bob", ids[0]))
	err = h.svc.DeleteNotification(ctx, "bob", ids[0])
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	// another user's notification is not found for bob
	other, err := h.svc.RaiseNotification(ctx, NotificationInput{UserID: "carol", Kind: data.NotifyReply, Title: "r"})
	require.NoError(t, err)
	err = h.svc.DeleteNotification(ctx, "bob", other.ID.Hex())
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	err = h.svc.DeleteNotification(ctx, "bob", bson.NilObjectID.Hex()+"zz")
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}
