// Package memstore is an in-memory implementation of the message,
// conversation, notification and user stores. It enforces the same
// uniqueness rules as the MongoDB indexes and is meant for tests and
// single-process local runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/inboxd/internal/data"
)

type Store struct {
	mu sync.Mutex

	messages      []*data.Message
	byClientID    map[string]*data.Message
	conversations map[string]*data.Conversation
	notifications []*data.Notification
	users         map[string]struct{}
	following     map[string]map[string]struct{}
}

func New() *Store {
	return &Store{
		byClientID:    make(map[string]*data.Message),
		conversations: make(map[string]*data.Conversation),
		users:         make(map[string]struct{}),
		following:     make(map[string]map[string]struct{}),
	}
}

func clientKey(senderID, clientMsgID string) string { return senderID + "\x00" + clientMsgID }

func copyMessage(m *data.Message) *data.Message {
	c := *m
	return &c
}

func copyConversation(c *data.Conversation) *data.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp
}

func copyNotification(n *data.Notification) *data.Notification {
	c := *n
	return &c
}

// AddUser makes userID known to UserExists.
func (s *Store) AddUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

// Follow records that followerID follows followeeID.
func (s *Store) Follow(followerID, followeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.following[followerID]
	if !ok {
		set = make(map[string]struct{})
		s.following[followerID] = set
	}
	set[followeeID] = struct{}{}
}

// Unfollow removes a follow relationship.
func (s *Store) Unfollow(followerID, followeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.following[followerID], followeeID)
}

func (s *Store) UserExists(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *Store) IsFollowing(_ context.Context, followerID, followeeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.following[followerID][followeeID]
	return ok, nil
}

// Messages

func (s *Store) CreateMessage(ctx context.Context, msg *data.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ClientMsgID != "" {
		if _, ok := s.byClientID[clientKey(msg.SenderID, msg.ClientMsgID)]; ok {
			return data.ErrDuplicate
		}
	}
	if msg.ID.IsZero() {
		msg.ID = bson.NewObjectID()
	}
	stored := copyMessage(msg)
	s.messages = append(s.messages, stored)
	if msg.ClientMsgID != "" {
		s.byClientID[clientKey(msg.SenderID, msg.ClientMsgID)] = stored
	}
	return nil
}

func (s *Store) FindByClientID(_ context.Context, senderID, clientMsgID string) (*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byClientID[clientKey(senderID, clientMsgID)]
	if !ok {
		return nil, data.ErrNotFound
	}
	return copyMessage(m), nil
}

func (s *Store) FindByID(_ context.Context, id bson.ObjectID) (*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return copyMessage(m), nil
		}
	}
	return nil, data.ErrNotFound
}

func (s *Store) LatestFrom(_ context.Context, fromID, toID string) (*data.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *data.Message
	for _, m := range s.messages {
		if m.SenderID != fromID || m.ReceiverID != toID {
			continue
		}
		if latest == nil || m.After(latest) {
			latest = m
		}
	}
	if latest == nil {
		return nil, data.ErrNotFound
	}
	return copyMessage(latest), nil
}

func (s *Store) History(_ context.Context, user1, user2 string, before time.Time, limit int64) ([]*data.Message, error) {
	s.mu.Lock()
	var out []*data.Message
	for _, m := range s.messages {
		between := (m.SenderID == user1 && m.ReceiverID == user2) || (m.SenderID == user2 && m.ReceiverID == user1)
		if !between || (!before.IsZero() && !m.CreatedAt.Before(before)) {
			continue
		}
		out = append(out, copyMessage(m))
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[j].After(out[i]) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, receiverID, senderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUnread(_ context.Context, receiverID, senderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && !m.Read && (senderID == "" || m.SenderID == senderID) {
			n++
		}
	}
	return n, nil
}

// Conversations

func (s *Store) FindByPair(_ context.Context, pairKey string) (*data.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[pairKey]
	if !ok {
		return nil, data.ErrNotFound
	}
	return copyConversation(c), nil
}

func (s *Store) CreateConversation(ctx context.Context, c *data.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.PairKey]; ok {
		return data.ErrDuplicate
	}
	if c.ID.IsZero() {
		c.ID = bson.NewObjectID()
	}
	s.conversations[c.PairKey] = copyConversation(c)
	return nil
}

func (s *Store) AdvanceLastMessage(ctx context.Context, pairKey string, messageID bson.ObjectID, at time.Time) (*data.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[pairKey]
	if !ok {
		return nil, data.ErrNotFound
	}
	if !c.LastMessageAt.After(at) {
		c.LastMessageID = messageID
		c.LastMessageAt = at
		c.UpdatedAt = time.Now().UTC()
	}
	return copyConversation(c), nil
}

func (s *Store) ListForUser(_ context.Context, userID string, limit int64) ([]*data.Conversation, error) {
	s.mu.Lock()
	var out []*data.Conversation
	for _, c := range s.conversations {
		for _, p := range c.Participants {
			if p == userID {
				out = append(out, copyConversation(c))
				break
			}
		}
	}
	s.mu.Unlock()

	// newest last message first, as the Mongo store sorts on last_message_at
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ConversationCount returns how many conversation records exist.
func (s *Store) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Notifications

func (s *Store) CreateNotification(ctx context.Context, n *data.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = bson.NewObjectID()
	}
	s.notifications = append(s.notifications, copyNotification(n))
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, kind data.NotificationKind, skip, limit int64) ([]*data.Notification, int64, error) {
	s.mu.Lock()
	var matched []*data.Notification
	for _, n := range s.notifications {
		if n.UserID == userID && (kind == "" || n.Kind == kind) {
			matched = append(matched, copyNotification(n))
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.Hex() > matched[j].ID.Hex()
	})

	total := int64(len(matched))
	if skip >= total {
		return nil, total, nil
	}
	matched = matched[skip:]
	if limit > 0 && int64(len(matched)) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *Store) MarkNotificationsRead(_ context.Context, userID string, ids []bson.ObjectID) (int64, error) {
	want := make(map[bson.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, notif := range s.notifications {
		if notif.UserID != userID || notif.Read {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[notif.ID]; !ok {
				continue
			}
		}
		notif.Read = true
		n++
	}
	return n, nil
}

func (s *Store) DeleteNotification(_ context.Context, userID string, id bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id && n.UserID == userID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return nil
		}
	}
	return data.ErrNotFound
}

func (s *Store) CountUnreadNotifications(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, notif := range s.notifications {
		if notif.UserID == userID && !notif.Read {
			n++
		}
	}
	return n, nil
}
