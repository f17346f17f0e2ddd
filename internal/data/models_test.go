package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMessageAfter(t *testing.T) {
	now := time.Now()
	older := &Message{ID: bson.NewObjectID(), CreatedAt: now}
	newer := &Message{ID: bson.NewObjectID(), CreatedAt: now.Add(time.Millisecond)}
	assert.True(t, newer.After(older))
	assert.False(t, older.After(newer))

	// same timestamp: the later-allocated id wins
	tie := &Message{ID: bson.NewObjectID(), CreatedAt: now}
	assert.True(t, tie.After(older))
	assert.False(t, older.After(tie))
}

func TestConversationCounterpart(t *testing.T) {
	c := &Conversation{Participants: []string{"alice", "bob"}}
	assert.Equal(t, "bob", c.Counterpart("alice"))
	assert.Equal(t, "alice", c.Counterpart("bob"))
}

func TestKindsValid(t *testing.T) {
	assert.True(t, KindText.Valid())
	assert.True(t, KindImage.Valid())
	assert.False(t, ContentKind("video").Valid())

	for _, k := range []NotificationKind{NotifyLike, NotifyComment, NotifyFollow, NotifyReply, NotifySystem} {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, NotificationKind("poke").Valid())
}
