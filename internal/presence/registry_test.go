package presence

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulBabatuyi/inboxd/internal/push"
)

type fakeConn struct {
	id   string
	user string
	fail bool

	mu   sync.Mutex
	sent []push.Event
}

func newFakeConn(id, user string) *fakeConn { return &fakeConn{id: id, user: user} }

func (f *fakeConn) ID() string           { return f.id }
func (f *fakeConn) UserID() string       { return f.user }
func (f *fakeConn) CreatedAt() time.Time { return time.Time{} }
func (f *fakeConn) Send(e push.Event) error {
	if f.fail {
		return errors.New("send fail")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
	return nil
}

func (f *fakeConn) events() []push.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push.Event(nil), f.sent...)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.IsOnline("alice"))

	c := newFakeConn("c1", "alice")
	assert.Nil(t, r.Register("alice", c))
	assert.True(t, r.IsOnline("alice"))

	got, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID())
}

func TestRegistry_ReplaceKeepsOnlyLatest(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeConn("c1", "u")
	c2 := newFakeConn("c2", "u")

	r.Register("u", c1)
	prev := r.Register("u", c2)
	require.NotNil(t, prev)
	assert.Equal(t, "c1", prev.ID())

	got, ok := r.Lookup("u")
	require.True(t, ok)
	assert.Equal(t, "c2", got.ID())
	assert.Equal(t, 1, r.Count())

	require.True(t, r.Deliver("u", push.Event{Name: push.EventTypingStart}))
	assert.Empty(t, c1.events())
	assert.Len(t, c2.events(), 1)
}

func TestRegistry_StaleConnCannotEvictReplacement(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeConn("c1", "u")
	c2 := newFakeConn("c2", "u")
	r.Register("u", c1)
	r.Register("u", c2)

	assert.False(t, r.UnregisterConn("u", c1))
	assert.True(t, r.IsOnline("u"))
	assert.True(t, r.UnregisterConn("u", c2))
	assert.False(t, r.IsOnline("u"))
}

func TestRegistry_UnregisterIsNoopWhenAbsent(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.OnChange(func(int) { calls++ })

	r.Unregister("nobody")
	assert.Zero(t, calls)

	r.Register("a", newFakeConn("c", "a"))
	r.Unregister("a")
	r.Unregister("a")
	assert.Equal(t, 2, calls)
	assert.False(t, r.IsOnline("a"))
}

func TestRegistry_DeliverDropsFailingConn(t *testing.T) {
	r := NewRegistry()
	watcher := newFakeConn("w", "w")
	r.Register("w", watcher)
	bad := newFakeConn("bad", "d")
	bad.fail = true
	r.Register("d", bad)

	assert.False(t, r.Deliver("d", push.Event{Name: push.EventMessageNew}))
	assert.False(t, r.IsOnline("d"))
	assert.False(t, r.Deliver("offline", push.Event{Name: push.EventMessageNew}))

	got := watcher.events()
	require.Len(t, got, 1)
	assert.Equal(t, push.EventPresenceOffline, got[0].Name)
	assert.Equal(t, push.UserRef{UserID: "d"}, got[0].Payload)
}

func TestRegistry_BroadcastEvictsFailingConn(t *testing.T) {
	r := NewRegistry()
	a := newFakeConn("ca", "a")
	b := newFakeConn("cb", "b")
	bad := newFakeConn("cc", "c")
	bad.fail = true
	for _, conn := range []*fakeConn{a, b, bad} {
		r.Register(conn.user, conn)
	}

	n := r.Broadcast(push.Event{Name: push.EventPresenceOnline, Payload: push.UserRef{UserID: "a"}}, "a")
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a", "b"}, r.Online())

	var offline []push.Event
	for _, e := range append(a.events(), b.events()...) {
		if e.Name == push.EventPresenceOffline {
			offline = append(offline, e)
		}
	}
	assert.Len(t, offline, 2)
}

func TestRegistry_BroadcastSkipsSender(t *testing.T) {
	r := NewRegistry()
	a := newFakeConn("ca", "a")
	b := newFakeConn("cb", "b")
	c := newFakeConn("cc", "c")
	for _, conn := range []*fakeConn{a, b, c} {
		r.Register(conn.user, conn)
	}

	n := r.Broadcast(push.Event{Name: push.EventPresenceOnline, Payload: push.UserRef{UserID: "a"}}, "a")
	assert.Equal(t, 2, n)
	assert.Empty(t, a.events())
	assert.Len(t, b.events(), 1)
	assert.Len(t, c.events(), 1)
	assert.Equal(t, []string{"a", "b", "c"}, r.Online())
}

// A register racing an unregister for the same user must end in one of
// the two well-defined states.
func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		c := newFakeConn(fmt.Sprintf("c%d", i), "u")
		go func() { defer wg.Done(); r.Register("u", c) }()
		go func() { defer wg.Done(); r.Unregister("u") }()
	}
	wg.Wait()

	if c, ok := r.Lookup("u"); ok {
		assert.Equal(t, "u", c.UserID())
		assert.Equal(t, 1, r.Count())
	} else {
		assert.Zero(t, r.Count())
	}
}
