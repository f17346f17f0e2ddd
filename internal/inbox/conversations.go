package inbox

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/normalize"
)

// Tracker keeps exactly one conversation record per unordered pair,
// pointing at the pair's latest message.
type Tracker struct {
	store ConversationStore
	now   func() time.Time
}

func NewTracker(store ConversationStore) *Tracker {
	return &Tracker{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Upsert records msg as the latest message between a and b. The pointer
// never moves back to an older message. When two callers race to create
// the record, the store's unique pair key rejects one of them and that
// caller falls back to the update path.
func (t *Tracker) Upsert(ctx context.Context, a, b string, msg *data.Message) (*data.Conversation, error) {
	lo, hi, err := normalize.Pair(a, b)
	if err != nil {
		return nil, apperr.InvalidArg(err.Error())
	}
	key := lo + ":" + hi

	conv, err := t.store.AdvanceLastMessage(ctx, key, msg.ID, msg.CreatedAt)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, data.ErrNotFound) {
		return nil, apperr.Persistence("could not update conversation", err)
	}

	now := t.now()
	conv = &data.Conversation{
		PairKey:       key,
		Participants:  []string{lo, hi},
		LastMessageID: msg.ID,
		LastMessageAt: msg.CreatedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = t.store.CreateConversation(ctx, conv)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, data.ErrDuplicate) {
		return nil, apperr.Persistence("could not create conversation", err)
	}

	conv, err = t.store.AdvanceLastMessage(ctx, key, msg.ID, msg.CreatedAt)
	if err != nil {
		return nil, apperr.Persistence("could not update conversation after losing create race", err)
	}
	return conv, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

func clampLimit(limit int64) int64 {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// ListConversations returns userID's conversations, most recent first,
// with the counterpart, the latest message and the unread count.
func (s *Service) ListConversations(ctx context.Context, userID string, limit int64) ([]*data.ConversationSummary, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, apperr.InvalidArg("user id is required")
	}
	convs, err := s.convs.ListForUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, apperr.Persistence("could not list conversations", err)
	}

	out := make([]*data.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		sum := &data.ConversationSummary{
			ID:            c.ID,
			CounterpartID: c.Counterpart(userID),
			UpdatedAt:     c.UpdatedAt,
		}
		if !c.LastMessageID.IsZero() {
			last, err := s.msgs.FindByID(ctx, c.LastMessageID)
			switch {
			case err == nil:
				sum.LastMessage = last
			case !errors.Is(err, data.ErrNotFound):
				return nil, apperr.Persistence("could not load last message", err)
			}
		}
		sum.UnreadCount, err = s.msgs.CountUnread(ctx, userID, sum.CounterpartID)
		if err != nil {
			return nil, apperr.Persistence("could not count unread messages", err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// History returns up to limit messages between userID and withID created
// before the given time (all when zero), oldest first.
func (s *Service) History(ctx context.Context, userID, withID string, before time.Time, limit int64) ([]*data.Message, error) {
	a, b := normalize.UserID(userID), normalize.UserID(withID)
	if _, _, err := normalize.Pair(a, b); err != nil {
		return nil, apperr.InvalidArg(err.Error())
	}
	msgs, err := s.msgs.History(ctx, a, b, before, clampLimit(limit))
	if err != nil {
		return nil, apperr.Persistence("could not load history", err)
	}
	return msgs, nil
}
