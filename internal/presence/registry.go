// Package presence tracks which users currently have a live connection.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/PaulBabatuyi/inboxd/internal/push"
)

// Conn is the handle the registry keeps for a live connection. Send must
// not block on network I/O.
type Conn interface {
	ID() string
	UserID() string
	CreatedAt() time.Time
	Send(push.Event) error
}

// Registry maps a user id to that user's most recent connection. A new
// connection for the same user replaces the previous entry.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn

	// onChange, when set, is called with the number of online users after
	// every mutation. It runs outside the lock.
	onChange func(online int)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// OnChange installs a callback observing the online count.
func (r *Registry) OnChange(fn func(online int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Register records c as userID's connection and returns the connection it
// replaced, if any. The replaced connection is not closed here; the
// transport that owns it closes it on its own disconnect signal.
func (r *Registry) Register(userID string, c Conn) Conn {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = c
	n, fn := len(r.conns), r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return prev
}

// Unregister removes userID's entry. It is a no-op when none exists.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	_, ok := r.conns[userID]
	delete(r.conns, userID)
	n, fn := len(r.conns), r.onChange
	r.mu.Unlock()

	if ok && fn != nil {
		fn(n)
	}
}

// UnregisterConn removes userID's entry only if it still points at c, and
// reports whether it did. A connection that was already replaced cannot
// evict its replacement.
func (r *Registry) UnregisterConn(userID string, c Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[userID]
	removed := ok && cur.ID() == c.ID()
	if removed {
		delete(r.conns, userID)
	}
	n, fn := len(r.conns), r.onChange
	r.mu.Unlock()

	if removed && fn != nil {
		fn(n)
	}
	return removed
}

// IsOnline reports whether userID has a registered connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Lookup returns userID's connection.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Online returns the ids of all online users, sorted.
func (r *Registry) Online() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Deliver pushes e to userID's connection and reports whether it was
// accepted. A connection whose Send fails is evicted.
func (r *Registry) Deliver(userID string, e push.Event) bool {
	c, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	if err := c.Send(e); err != nil {
		r.evict(userID, c)
		return false
	}
	return true
}

// Broadcast pushes e to every online user except exceptUserID.
func (r *Registry) Broadcast(e push.Event, exceptUserID string) int {
	r.mu.RLock()
	targets := make(map[string]Conn, len(r.conns))
	for id, c := range r.conns {
		if id != exceptUserID {
			targets[id] = c
		}
	}
	r.mu.RUnlock()

	sent := 0
	for id, c := range targets {
		if err := c.Send(e); err != nil {
			r.evict(id, c)
			continue
		}
		sent++
	}
	return sent
}

// evict drops c after a failed push and, if it was still current, tells
// everyone else that userID went offline.
func (r *Registry) evict(userID string, c Conn) {
	if r.UnregisterConn(userID, c) {
		r.Broadcast(push.Event{Name: push.EventPresenceOffline, Payload: push.UserRef{UserID: userID}}, userID)
	}
}
