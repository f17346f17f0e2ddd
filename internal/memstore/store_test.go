package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/inboxd/internal/data"
)

func TestMessagesClientIDIsUniquePerSender(t *testing.T) {
	s := New()
	ctx := context.Background()

	m := &data.Message{SenderID: "alice", ReceiverID: "bob", Content: "hi", ClientMsgID: "c1"}
	require.NoError(t, s.CreateMessage(ctx, m))
	require.False(t, m.ID.IsZero())

	require.ErrorIs(t, s.CreateMessage(ctx, &data.Message{SenderID: "alice", ReceiverID: "bob", ClientMsgID: "c1"}), data.ErrDuplicate)
	// another sender may reuse the token
	require.NoError(t, s.CreateMessage(ctx, &data.Message{SenderID: "bob", ReceiverID: "alice", ClientMsgID: "c1"}))
	// empty tokens never collide
	require.NoError(t, s.CreateMessage(ctx, &data.Message{SenderID: "alice", ReceiverID: "bob"}))
	require.NoError(t, s.CreateMessage(ctx, &data.Message{SenderID: "alice", ReceiverID: "bob"}))

	got, err := s.FindByClientID(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = s.FindByClientID(ctx, "alice", "nope")
	require.ErrorIs(t, err, data.ErrNotFound)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, from := range []string{"a", "b", "a", "b"} {
		to := "b"
		if from == "b" {
			to = "a"
		}
		require.NoError(t, s.CreateMessage(ctx, &data.Message{SenderID: from, ReceiverID: to, Content: string(rune('w' + i)), CreatedAt: base.Add(time.Duration(i) * time.Second)}))
	}
	require.NoError(t, s.CreateMessage(ctx, &data.Message{SenderID: "a", ReceiverID: "c", CreatedAt: base}))

	all, err := s.History(ctx, "b", "a", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "w", all[0].Content)
	assert.Equal(t, "z", all[3].Content)

	last2, err := s.History(ctx, "a", "b", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	assert.Equal(t, "y", last2[0].Content)

	before, err := s.History(ctx, "a", "b", base.Add(2*time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, before, 2)

	latest, err := s.LatestFrom(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "y", latest.Content)
}

func TestConversationUniquePairAndMonotonicPointer(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	newer, older := bson.NewObjectID(), bson.NewObjectID()
	require.NoError(t, s.CreateConversation(ctx, &data.Conversation{PairKey: "a:b", Participants: []string{"a", "b"}, LastMessageID: newer, LastMessageAt: now}))
	require.ErrorIs(t, s.CreateConversation(ctx, &data.Conversation{PairKey: "a:b"}), data.ErrDuplicate)

	c, err := s.AdvanceLastMessage(ctx, "a:b", older, now.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, newer, c.LastMessageID)

	latest := bson.NewObjectID()
	c, err = s.AdvanceLastMessage(ctx, "a:b", latest, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, latest, c.LastMessageID)

	_, err = s.AdvanceLastMessage(ctx, "x:y", latest, now)
	require.ErrorIs(t, err, data.ErrNotFound)
}

func TestListForUserOrdersByLastMessage(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateConversation(ctx, &data.Conversation{PairKey: "a:b", Participants: []string{"a", "b"}, LastMessageAt: now.Add(time.Second), UpdatedAt: now}))
	require.NoError(t, s.CreateConversation(ctx, &data.Conversation{PairKey: "a:c", Participants: []string{"a", "c"}, LastMessageAt: now, UpdatedAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreateConversation(ctx, &data.Conversation{PairKey: "b:c", Participants: []string{"b", "c"}, LastMessageAt: now}))

	list, err := s.ListForUser(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a:b", list[0].PairKey)
	assert.Equal(t, "a:c", list[1].PairKey)

	list, err = s.ListForUser(ctx, "a", 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestConcurrentConversationCreate(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.CreateConversation(ctx, &data.Conversation{PairKey: "a:b"}); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, s.ConversationCount())
}

func TestMarkReadAndCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateMessage(ctx, &data.Message{SenderID: "a", ReceiverID: "b"}))
	}
	require.NoError(t, s.CreateMessage(ctx, &data.Message{SenderID: "c", ReceiverID: "b"}))

	n, err := s.CountUnread(ctx, "b", "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	changed, err := s.MarkRead(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)

	changed, err = s.MarkRead(ctx, "b", "a")
	require.NoError(t, err)
	assert.Zero(t, changed)

	n, err = s.CountUnread(ctx, "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNotificationsPagingReadDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()
	kinds := []data.NotificationKind{data.NotifyLike, data.NotifyFollow, data.NotifyLike}
	var ids []bson.ObjectID
	for i, k := range kinds {
		n := &data.Notification{UserID: "u", Kind: k, Title: "t", CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, s.CreateNotification(ctx, n))
		ids = append(ids, n.ID)
	}
	require.NoError(t, s.CreateNotification(ctx, &data.Notification{UserID: "other", Kind: data.NotifyLike}))

	page, total, err := s.ListNotifications(ctx, "u", "", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)

	likes, total, err := s.ListNotifications(ctx, "u", data.NotifyLike, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, likes, 2)

	changed, err := s.MarkNotificationsRead(ctx, "u", []bson.ObjectID{ids[0]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)
	unread, _ := s.CountUnreadNotifications(ctx, "u")
	assert.Equal(t, int64(2), unread)

	changed, err = s.MarkNotificationsRead(ctx, "u", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	require.NoError(t, s.DeleteNotification(ctx, "u", ids[1]))
	require.ErrorIs(t, s.DeleteNotification(ctx, "u", ids[1]), data.ErrNotFound)
	require.ErrorIs(t, s.DeleteNotification(ctx, "other", ids[0]), data.ErrNotFound)
}

func TestFollowGraph(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Follow("a", "b")

	ok, _ := s.IsFollowing(ctx, "a", "b")
	assert.True(t, ok)
	ok, _ = s.IsFollowing(ctx, "b", "a")
	assert.False(t, ok)

	s.Unfollow("a", "b")
	ok, _ = s.IsFollowing(ctx, "a", "b")
	assert.False(t, ok)

	exists, _ := s.UserExists(ctx, "a")
	assert.False(t, exists)
	s.AddUser("a")
	exists, _ = s.UserExists(ctx, "a")
	assert.True(t, exists)
}
