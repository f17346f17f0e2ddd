package inbox

import (
	"context"

	"github.com/pkg/errors"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
)

// Gate reasons. Only ReasonFollowToContinue denies.
const (
	ReasonFollowing        = "following"
	ReasonFollowedBy       = "followed-by"
	ReasonFirstMessage     = "first-message"
	ReasonReplied          = "replied"
	ReasonFollowToContinue = "follow-to-continue"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate is the anti-spam send policy. Without a follow relationship in
// either direction a sender gets one message, and the next one only after
// the recipient has answered.
type Gate struct {
	follows  FollowGraph
	messages MessageStore
}

func NewGate(follows FollowGraph, messages MessageStore) *Gate {
	return &Gate{follows: follows, messages: messages}
}

// Allow decides whether senderID may send to recipientID now.
func (g *Gate) Allow(ctx context.Context, senderID, recipientID string) (Decision, error) {
	if g.follows != nil {
		ok, err := g.follows.IsFollowing(ctx, senderID, recipientID)
		if err != nil {
			return Decision{}, errors.Wrap(err, "gate: sender follows recipient")
		}
		if ok {
			return Decision{Allowed: true, Reason: ReasonFollowing}, nil
		}
		ok, err = g.follows.IsFollowing(ctx, recipientID, senderID)
		if err != nil {
			return Decision{}, errors.Wrap(err, "gate: recipient follows sender")
		}
		if ok {
			return Decision{Allowed: true, Reason: ReasonFollowedBy}, nil
		}
	}

	last, err := g.messages.LatestFrom(ctx, senderID, recipientID)
	if errors.Is(err, data.ErrNotFound) {
		return Decision{Allowed: true, Reason: ReasonFirstMessage}, nil
	}
	if err != nil {
		return Decision{}, errors.Wrap(err, "gate: sender's latest message")
	}

	reply, err := g.messages.LatestFrom(ctx, recipientID, senderID)
	if errors.Is(err, data.ErrNotFound) {
		return Decision{Reason: ReasonFollowToContinue}, nil
	}
	if err != nil {
		return Decision{}, errors.Wrap(err, "gate: recipient's latest message")
	}
	if reply.After(last) {
		return Decision{Allowed: true, Reason: ReasonReplied}, nil
	}
	return Decision{Reason: ReasonFollowToContinue}, nil
}

// check turns a denied decision or a failed lookup into an app error.
func (g *Gate) check(ctx context.Context, senderID, recipientID string) error {
	d, err := g.Allow(ctx, senderID, recipientID)
	if err != nil {
		return apperr.Persistence("could not evaluate send permission", err)
	}
	if !d.Allowed {
		return apperr.Forbidden("follow this user to continue the conversation", map[string]string{
			"reason":      d.Reason,
			"recipientId": recipientID,
		})
	}
	return nil
}
