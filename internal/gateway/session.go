// Package gateway binds authenticated client connections to the messaging
// core. It is independent of the wire transport: gRPC streams and
// WebSockets both hand it a Session and a frame reader.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PaulBabatuyi/inboxd/internal/metrics"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

var (
	ErrOutboxFull    = errors.New("session outbox is full")
	ErrSessionClosed = errors.New("session is closed")
)

const (
	// DefaultOutboxSize is used when NewSession is given a non-positive size.
	DefaultOutboxSize = 64
	// MaxInFlightSends caps the message sends one session may have running.
	MaxInFlightSends = 8
)

// Session is one live connection of one user. Frames are queued on a
// bounded outbox and written by a single Run loop, so Send never waits on
// the network. A session whose outbox overflows is closed: the client is
// too slow to keep up and has to reconnect.
type Session struct {
	id        string
	userID    string
	transport string
	createdAt time.Time

	out       chan push.Frame
	sends     chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	metrics *metrics.Metrics
}

// NewSession creates a session for an authenticated user. m may be nil.
func NewSession(userID, transport string, size int, m *metrics.Metrics) *Session {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Session{
		id:        uuid.NewString(),
		userID:    userID,
		transport: transport,
		createdAt: time.Now().UTC(),
		out:       make(chan push.Frame, size),
		sends:     make(chan struct{}, MaxInFlightSends),
		done:      make(chan struct{}),
		metrics:   m,
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) UserID() string       { return s.userID }
func (s *Session) Transport() string    { return s.transport }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Send queues a pushed event.
func (s *Session) Send(e push.Event) error {
	f, err := push.FrameOf(e)
	if err != nil {
		return err
	}
	return s.enqueue(f)
}

func (s *Session) enqueue(f push.Frame) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- f:
		return nil
	default:
		if s.metrics != nil {
			s.metrics.DroppedPushes.Inc()
		}
		s.Close()
		return ErrOutboxFull
	}
}

// Run writes queued frames until ctx ends, the session is closed or write
// fails. A write error closes the session.
func (s *Session) Run(ctx context.Context, write func(push.Frame) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case f := <-s.out:
			if err := write(f); err != nil {
				s.Close()
				return err
			}
		}
	}
}

// acquireSend reserves an in-flight send slot and reports whether one was
// free.
func (s *Session) acquireSend() bool {
	select {
	case s.sends <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) releaseSend() { <-s.sends }

// Close stops the session. Queued frames are discarded.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed when the session is.
func (s *Session) Done() <-chan struct{} { return s.done }
