package inbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/logging"
	"github.com/PaulBabatuyi/inboxd/internal/memstore"
	"github.com/PaulBabatuyi/inboxd/internal/presence"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

type fakeConn struct {
	id     string
	userID string
	at     time.Time

	mu     sync.Mutex
	events []push.Event
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{id: uuid.NewString(), userID: userID, at: time.Now()}
}

func (c *fakeConn) ID() string           { return c.id }
func (c *fakeConn) UserID() string       { return c.userID }
func (c *fakeConn) CreatedAt() time.Time { return c.at }

func (c *fakeConn) Send(e push.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) named(name string) []push.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []push.Event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	svc   *Service
	store *memstore.Store
	reg   *presence.Registry
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store := memstore.New()
	reg := presence.NewRegistry()
	svc := New(Deps{
		Messages:      store,
		Conversations: store,
		Notifications: store,
		Follows:       store,
		Presence:      reg,
		Log:           logging.Discard(),
	}, cfg)
	svc.now = steppingClock()
	return &harness{svc: svc, store: store, reg: reg}
}

func (h *harness) connect(userID string) *fakeConn {
	c := newFakeConn(userID)
	h.reg.Register(userID, c)
	return c
}

// steppingClock returns a clock that advances one millisecond per call.
func steppingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func text(to, content string) SendRequest {
	return SendRequest{RecipientID: to, Content: content, ContentKind: data.KindText}
}

// slowMessages delays CreateMessage.
type slowMessages struct {
	*memstore.Store
	delay time.Duration
}

func (s slowMessages) CreateMessage(ctx context.Context, msg *data.Message) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.CreateMessage(ctx, msg)
}

// failingMessages fails every CreateMessage.
type failingMessages struct {
	*memstore.Store
	err error
}

func (f failingMessages) CreateMessage(context.Context, *data.Message) error { return f.err }

// failingConversations fails every conversation write.
type failingConversations struct {
	*memstore.Store
	err error
}

func (f failingConversations) AdvanceLastMessage(context.Context, string, bson.ObjectID, time.Time) (*data.Conversation, error) {
	return nil, f.err
}

// slowDirectory answers UserExists after a delay.
type slowDirectory struct {
	*memstore.Store
	delay time.Duration
}

func (s slowDirectory) UserExists(ctx context.Context, userID string) (bool, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return s.Store.UserExists(ctx, userID)
}
