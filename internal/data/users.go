package data

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// UsersStore reads the users collection owned by the identity service.
// The messaging core only needs to know whether a user exists and who
// follows whom; each user document carries a "following" array of ids.
type UsersStore struct {
	coll *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collection.
func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

// userKey returns how id is stored: ObjectID when it parses as one.
func userKey(id string) any {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// UserExists checks if a user exists by id.
func (u *UsersStore) UserExists(ctx context.Context, userID string) (bool, error) {
	count, err := u.coll.CountDocuments(ctx, bson.M{"_id": userKey(userID)})
	if err != nil {
		return false, errors.Wrap(err, "usersStore.UserExists")
	}
	return count > 0, nil
}

// IsFollowing reports whether followerID follows followeeID.
func (u *UsersStore) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	count, err := u.coll.CountDocuments(ctx, bson.M{
		"_id":       userKey(followerID),
		"following": userKey(followeeID),
	})
	if err != nil {
		return false, errors.Wrap(err, "usersStore.IsFollowing")
	}
	return count > 0, nil
}
