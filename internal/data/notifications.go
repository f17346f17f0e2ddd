package data

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NotificationsStore provides notification database operations.
type NotificationsStore struct {
	coll *mongo.Collection
}

func NewNotificationsStore(coll *mongo.Collection) *NotificationsStore {
	return &NotificationsStore{coll: coll}
}

func (s *NotificationsStore) CreateNotification(ctx context.Context, n *Notification) error {
	if n.ID.IsZero() {
		n.ID = bson.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		return errors.Wrap(err, "notificationsStore.CreateNotification")
	}
	return nil
}

// ListNotifications returns a page of userID's notifications, newest first,
// with the total matching count. An empty kind matches every kind.
func (s *NotificationsStore) ListNotifications(ctx context.Context, userID string, kind NotificationKind, skip, limit int64) ([]*Notification, int64, error) {
	filter := bson.M{"user_id": userID}
	if kind != "" {
		filter["type"] = kind
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, errors.Wrap(err, "notificationsStore.ListNotifications")
	}
	defer cursor.Close(ctx)

	var out []*Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, 0, errors.Wrap(err, "notificationsStore.ListNotifications.All")
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "notificationsStore.ListNotifications.Count")
	}
	return out, total, nil
}

// MarkNotificationsRead marks the given notifications of userID read, or all
// of them when ids is empty.
func (s *NotificationsStore) MarkNotificationsRead(ctx context.Context, userID string, ids []bson.ObjectID) (int64, error) {
	filter := bson.M{"user_id": userID, "read": false}
	if len(ids) > 0 {
		filter["_id"] = bson.M{"$in": ids}
	}
	res, err := s.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, errors.Wrap(err, "notificationsStore.MarkNotificationsRead")
	}
	return res.ModifiedCount, nil
}

// DeleteNotification removes one of userID's notifications.
func (s *NotificationsStore) DeleteNotification(ctx context.Context, userID string, id bson.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return errors.Wrap(err, "notificationsStore.DeleteNotification")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *NotificationsStore) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
	if err != nil {
		return 0, errors.Wrap(err, "notificationsStore.CountUnreadNotifications")
	}
	return n, nil
}
