// Package inbox implements the messaging core: direct message delivery,
// conversations, the send-permission gate, read receipts, typing signals
// and notification fan-out. Transports call into a Service with an
// already-authenticated user id.
package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/metrics"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

// MessageStore persists direct messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *data.Message) error
	FindByClientID(ctx context.Context, senderID, clientMsgID string) (*data.Message, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*data.Message, error)
	LatestFrom(ctx context.Context, fromID, toID string) (*data.Message, error)
	History(ctx context.Context, user1, user2 string, before time.Time, limit int64) ([]*data.Message, error)
	MarkRead(ctx context.Context, receiverID, senderID string) (int64, error)
	CountUnread(ctx context.Context, receiverID, senderID string) (int64, error)
}

// ConversationStore persists one record per participant pair.
type ConversationStore interface {
	FindByPair(ctx context.Context, pairKey string) (*data.Conversation, error)
	CreateConversation(ctx context.Context, c *data.Conversation) error
	AdvanceLastMessage(ctx context.Context, pairKey string, messageID bson.ObjectID, at time.Time) (*data.Conversation, error)
	ListForUser(ctx context.Context, userID string, limit int64) ([]*data.Conversation, error)
}

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *data.Notification) error
	ListNotifications(ctx context.Context, userID string, kind data.NotificationKind, skip, limit int64) ([]*data.Notification, int64, error)
	MarkNotificationsRead(ctx context.Context, userID string, ids []bson.ObjectID) (int64, error)
	DeleteNotification(ctx context.Context, userID string, id bson.ObjectID) error
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
}

// FollowGraph answers follow-relationship questions. It is owned by the
// social layer outside this service.
type FollowGraph interface {
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
}

// Directory reports whether a user id is known.
type Directory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Pusher delivers an event to a user's live connection, if any.
type Pusher interface {
	Deliver(userID string, e push.Event) bool
}

// Config tunes a Service. Zero values fall back to the defaults.
type Config struct {
	// SendTimeout bounds how long a sender waits for a send result.
	SendTimeout time.Duration
	// StoreTimeout bounds the persistence work of a send, which keeps
	// running after SendTimeout has expired.
	StoreTimeout time.Duration
	// MaxContentLength caps message content, in bytes.
	MaxContentLength int
}

const (
	DefaultSendTimeout      = 10 * time.Second
	DefaultStoreTimeout     = 30 * time.Second
	DefaultMaxContentLength = 4096
)

func (c Config) withDefaults() Config {
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = DefaultMaxContentLength
	}
	return c
}

// Deps are the collaborators of a Service. Directory and Metrics are
// optional.
type Deps struct {
	Messages      MessageStore
	Conversations ConversationStore
	Notifications NotificationStore
	Follows       FollowGraph
	Directory     Directory
	Presence      Pusher
	Metrics       *metrics.Metrics
	Log           logrus.FieldLogger
}

// Service is the messaging core.
type Service struct {
	msgs     MessageStore
	notes    NotificationStore
	users    Directory
	presence Pusher
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
	cfg      Config

	gate    *Gate
	tracker *Tracker
	convs   ConversationStore
	pairs   *keyedMutex

	now func() time.Time
}

// New wires a Service.
func New(d Deps, cfg Config) *Service {
	log := d.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	s := &Service{
		msgs:     d.Messages,
		notes:    d.Notifications,
		users:    d.Directory,
		presence: d.Presence,
		metrics:  d.Metrics,
		log:      log.WithField("component", "inbox"),
		cfg:      cfg.withDefaults(),
		convs:    d.Conversations,
		pairs:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.gate = NewGate(d.Follows, d.Messages)
	s.tracker = NewTracker(d.Conversations)
	s.tracker.now = func() time.Time { return s.now() }
	return s
}

// Gate returns the send-permission gate used by SendMessage.
func (s *Service) Gate() *Gate { return s.gate }

// Tracker returns the conversation tracker used by SendMessage.
func (s *Service) Tracker() *Tracker { return s.tracker }

func (s *Service) deliver(userID string, e push.Event) bool {
	if s.presence == nil {
		return false
	}
	return s.presence.Deliver(userID, e)
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
