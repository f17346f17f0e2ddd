package inbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/normalize"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

// NotificationInput is an already-formed notification from a collaborator.
type NotificationInput struct {
	UserID           string                `json:"userId"`
	Kind             data.NotificationKind `json:"type"`
	Title            string                `json:"title"`
	Body             string                `json:"content"`
	RelatedUserID    string                `json:"relatedUserId,omitempty"`
	RelatedContentID string                `json:"relatedContentId,omitempty"`
}

const maxTitleLength = 200

// RaiseNotification persists a notification and pushes it to the target
// user when they are online. A push that cannot be made is not an error;
// the notification is listed on the next fetch.
func (s *Service) RaiseNotification(ctx context.Context, in NotificationInput) (*data.Notification, error) {
	in.UserID = normalize.UserID(in.UserID)
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.UserID == "":
		return nil, apperr.InvalidArg("userId is required")
	case !in.Kind.Valid():
		return nil, apperr.InvalidArg(fmt.Sprintf("unknown notification type %q", in.Kind))
	case in.Title == "":
		return nil, apperr.InvalidArg("title is required")
	case len(in.Title) > maxTitleLength:
		return nil, apperr.InvalidArg("title is too long")
	case len(in.Body) > s.cfg.MaxContentLength:
		return nil, apperr.InvalidArg("content is too long")
	}

	n := &data.Notification{
		ID:               bson.NewObjectID(),
		UserID:           in.UserID,
		Kind:             in.Kind,
		Title:            in.Title,
		Body:             in.Body,
		RelatedUserID:    normalize.UserID(in.RelatedUserID),
		RelatedContentID: strings.TrimSpace(in.RelatedContentID),
		CreatedAt:        s.now(),
	}
	if err := s.notes.CreateNotification(ctx, n); err != nil {
		return nil, apperr.Persistence("could not save notification", err)
	}

	delivered := s.deliver(n.UserID, push.Event{Name: push.EventNotificationNew, Payload: n})
	if s.metrics != nil {
		s.metrics.Notifications.WithLabelValues(string(n.Kind), strconv.FormatBool(delivered)).Inc()
	}
	s.log.WithFields(logrus.Fields{
		"user_id":   n.UserID,
		"type":      n.Kind,
		"delivered": delivered,
	}).Debug("notification raised")
	return n, nil
}

// NotificationPage is one page of a user's notifications.
type NotificationPage struct {
	Items []*data.Notification `json:"items"`
	Total int64                `json:"total"`
	Page  int64                `json:"page"`
	Limit int64                `json:"limit"`
}

// ListNotifications returns page (1-based) of userID's notifications,
// newest first, optionally filtered by kind.
func (s *Service) ListNotifications(ctx context.Context, userID string, kind data.NotificationKind, page, limit int64) (*NotificationPage, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return nil, apperr.InvalidArg("user id is required")
	}
	if kind != "" && !kind.Valid() {
		return nil, apperr.InvalidArg(fmt.Sprintf("unknown notification type %q", kind))
	}
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit)

	items, total, err := s.notes.ListNotifications(ctx, userID, kind, (page-1)*limit, limit)
	if err != nil {
		return nil, apperr.Persistence("could not list notifications", err)
	}
	if items == nil {
		items = []*data.Notification{}
	}
	return &NotificationPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// MarkNotificationsRead marks the given notifications of userID read, or
// all of them when ids is empty.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	userID = normalize.UserID(userID)
	if userID == "" {
		return 0, apperr.InvalidArg("user id is required")
	}
	oids := make([]bson.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := bson.ObjectIDFromHex(id)
		if err != nil {
			return 0, apperr.InvalidArg(fmt.Sprintf("invalid notification id %q", id))
		}
		oids = append(oids, oid)
	}
	n, err := s.notes.MarkNotificationsRead(ctx, userID, oids)
	if err != nil {
		return 0, apperr.Persistence("could not mark notifications read", err)
	}
	return n, nil
}

// DeleteNotification removes one of userID's notifications.
func (s *Service) DeleteNotification(ctx context.Context, userID, id string) error {
	userID = normalize.UserID(userID)
	if userID == "" {
		return apperr.InvalidArg("user id is required")
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return apperr.InvalidArg(fmt.Sprintf("invalid notification id %q", id))
	}
	err = s.notes.DeleteNotification(ctx, userID, oid)
	if errors.Is(err, data.ErrNotFound) {
		return apperr.NotFound("notification not found")
	}
	if err != nil {
		return apperr.Persistence("could not delete notification", err)
	}
	return nil
}
