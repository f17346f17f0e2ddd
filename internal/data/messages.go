package data

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// CreateMessage inserts msg, assigning its id. A second message from the
// same sender with the same client message id fails with ErrDuplicate.
func (m *MessagesStore) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.ID.IsZero() {
		msg.ID = bson.NewObjectID()
	}
	if _, err := m.coll.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "messagesStore.CreateMessage")
	}
	return nil
}

// FindByClientID returns the message senderID submitted with clientMsgID.
func (m *MessagesStore) FindByClientID(ctx context.Context, senderID, clientMsgID string) (*Message, error) {
	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"sender_id": senderID, "client_msg_id": clientMsgID}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "messagesStore.FindByClientID")
	}
	return &msg, nil
}

// FindByID returns one message.
func (m *MessagesStore) FindByID(ctx context.Context, id bson.ObjectID) (*Message, error) {
	var msg Message
	if err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "messagesStore.FindByID")
	}
	return &msg, nil
}

// LatestFrom returns the most recent message sent from one user to another.
func (m *MessagesStore) LatestFrom(ctx context.Context, fromID, toID string) (*Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"sender_id": fromID, "receiver_id": toID}, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "messagesStore.LatestFrom")
	}
	return &msg, nil
}

// History returns up to limit messages between two users created before
// the given time (no bound when zero), ordered oldest to newest.
func (m *MessagesStore) History(ctx context.Context, user1, user2 string, before time.Time, limit int64) ([]*Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender_id": user1, "receiver_id": user2},
			bson.M{"sender_id": user2, "receiver_id": user1},
		},
	}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "messagesStore.History")
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, errors.Wrap(err, "messagesStore.History.All")
	}

	// newest first from the query; callers want chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead flips read to true on every unread message from senderID to
// receiverID and returns how many changed.
func (m *MessagesStore) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	res, err := m.coll.UpdateMany(ctx,
		bson.M{"sender_id": senderID, "receiver_id": receiverID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "messagesStore.MarkRead")
	}
	return res.ModifiedCount, nil
}

// CountUnread counts unread messages addressed to receiverID, optionally
// only those from senderID.
func (m *MessagesStore) CountUnread(ctx context.Context, receiverID, senderID string) (int64, error) {
	filter := bson.M{"receiver_id": receiverID, "read": false}
	if senderID != "" {
		filter["sender_id"] = senderID
	}
	n, err := m.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, "messagesStore.CountUnread")
	}
	return n, nil
}
