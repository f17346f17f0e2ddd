package inbox

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/normalize"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

// MarkRead marks every unread message from counterpartID to readerID as
// read and returns how many changed. Calling it again changes nothing.
// The counterpart gets a read:ack push only when something changed.
func (s *Service) MarkRead(ctx context.Context, readerID, counterpartID string) (int64, error) {
	readerID, counterpartID = normalize.UserID(readerID), normalize.UserID(counterpartID)
	if _, _, err := normalize.Pair(readerID, counterpartID); err != nil {
		return 0, apperr.InvalidArg("counterpartId must name another user")
	}

	n, err := s.msgs.MarkRead(ctx, readerID, counterpartID)
	if err != nil {
		return 0, apperr.Persistence("could not mark messages read", err)
	}
	if n > 0 {
		s.deliver(counterpartID, push.Event{
			Name:    push.EventReadAck,
			Payload: push.ReadAck{ReaderID: readerID, Count: n},
		})
		s.log.WithFields(logrus.Fields{
			"user_id":        readerID,
			"counterpart_id": counterpartID,
			"count":          n,
		}).Debug("messages marked read")
	}
	return n, nil
}

// UnreadCounts returns userID's unread messages and notifications.
func (s *Service) UnreadCounts(ctx context.Context, userID string) (data.UnreadCounts, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return data.UnreadCounts{}, apperr.InvalidArg("user id is required")
	}
	msgs, err := s.msgs.CountUnread(ctx, userID, "")
	if err != nil {
		return data.UnreadCounts{}, apperr.Persistence("could not count unread messages", err)
	}
	notes, err := s.notes.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return data.UnreadCounts{}, apperr.Persistence("could not count unread notifications", err)
	}
	return data.UnreadCounts{Messages: msgs, Notifications: notes, Total: msgs + notes}, nil
}
