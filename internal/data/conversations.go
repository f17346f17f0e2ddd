package data

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConversationsStore persists one conversation per participant pair. The
// unique index on pair_key is what guarantees a single record.
type ConversationsStore struct {
	coll *mongo.Collection
}

func NewConversationsStore(coll *mongo.Collection) *ConversationsStore {
	return &ConversationsStore{coll: coll}
}

// FindByPair returns the conversation for a pair key.
func (s *ConversationsStore) FindByPair(ctx context.Context, pairKey string) (*Conversation, error) {
	var c Conversation
	if err := s.coll.FindOne(ctx, bson.M{"pair_key": pairKey}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "conversationsStore.FindByPair")
	}
	return &c, nil
}

// CreateConversation inserts c. Losing a creation race to another writer
// for the same pair yields ErrDuplicate.
func (s *ConversationsStore) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.ID.IsZero() {
		c.ID = bson.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "conversationsStore.CreateConversation")
	}
	return nil
}

// AdvanceLastMessage points the pair's conversation at messageID unless it
// already points at a newer message, and returns the stored record.
func (s *ConversationsStore) AdvanceLastMessage(ctx context.Context, pairKey string, messageID bson.ObjectID, at time.Time) (*Conversation, error) {
	filter := bson.M{"pair_key": pairKey, "last_message_at": bson.M{"$lte": at}}
	update := bson.M{"$set": bson.M{
		"last_message_id": messageID,
		"last_message_at": at,
		"updated_at":      time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var c Conversation
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(err, "conversationsStore.AdvanceLastMessage")
	}
	// either missing or already ahead of this message
	return s.FindByPair(ctx, pairKey)
}

// ListForUser returns userID's conversations, newest last message first.
func (s *ConversationsStore) ListForUser(ctx context.Context, userID string, limit int64) ([]*Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}}).SetLimit(limit)

	cursor, err := s.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "conversationsStore.ListForUser")
	}
	defer cursor.Close(ctx)

	var out []*Conversation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "conversationsStore.ListForUser.All")
	}
	return out, nil
}
