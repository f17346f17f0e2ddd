package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ContentKind tells how a message's content is interpreted.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
)

// Valid reports whether k is a known kind.
func (k ContentKind) Valid() bool {
	return k == KindText || k == KindImage
}

// Message maps to the messages collection. Everything except Read is
// immutable once stored; Read only ever goes from false to true.
type Message struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID    string        `bson:"sender_id" json:"senderId"`
	ReceiverID  string        `bson:"receiver_id" json:"receiverId"`
	Content     string        `bson:"content" json:"content"`
	Kind        ContentKind   `bson:"type" json:"type"`
	Read        bool          `bson:"read" json:"read"`
	ClientMsgID string        `bson:"client_msg_id,omitempty" json:"clientMessageId,omitempty"`
	CreatedAt   time.Time     `bson:"created_at" json:"createdAt"`
}

// After reports whether m was created strictly after other. Equal
// timestamps are ordered by id, which grows monotonically per process.
func (m *Message) After(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.After(other.CreatedAt)
	}
	return m.ID.Hex() > other.ID.Hex()
}

// Conversation maps to the conversations collection: one record per
// unordered participant pair, pointing at the pair's latest message.
type Conversation struct {
	ID            bson.ObjectID `bson:"_id,omitempty" json:"id"`
	PairKey       string        `bson:"pair_key" json:"-"`
	Participants  []string      `bson:"participants" json:"participants"`
	LastMessageID bson.ObjectID `bson:"last_message_id" json:"lastMessageId"`
	LastMessageAt time.Time     `bson:"last_message_at" json:"lastMessageAt"`
	CreatedAt     time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time     `bson:"updated_at" json:"updatedAt"`
}

// Counterpart returns the participant that is not userID.
func (c *Conversation) Counterpart(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ID            bson.ObjectID `json:"id"`
	CounterpartID string        `json:"counterpartId"`
	LastMessage   *Message      `json:"lastMessage,omitempty"`
	UnreadCount   int64         `json:"unreadCount"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// NotificationKind is the social event a notification reports.
type NotificationKind string

const (
	NotifyLike    NotificationKind = "like"
	NotifyComment NotificationKind = "comment"
	NotifyFollow  NotificationKind = "follow"
	NotifyReply   NotificationKind = "reply"
	NotifySystem  NotificationKind = "system"
)

// Valid reports whether k is a known kind.
func (k NotificationKind) Valid() bool {
	switch k {
	case NotifyLike, NotifyComment, NotifyFollow, NotifyReply, NotifySystem:
		return true
	}
	return false
}

// Notification maps to the notifications collection.
type Notification struct {
	ID               bson.ObjectID    `bson:"_id,omitempty" json:"id"`
	UserID           string           `bson:"user_id" json:"userId"`
	Kind             NotificationKind `bson:"type" json:"type"`
	Title            string           `bson:"title" json:"title"`
	Body             string           `bson:"content" json:"content"`
	RelatedUserID    string           `bson:"related_user_id,omitempty" json:"relatedUserId,omitempty"`
	RelatedContentID string           `bson:"related_content_id,omitempty" json:"relatedContentId,omitempty"`
	Read             bool             `bson:"read" json:"read"`
	CreatedAt        time.Time        `bson:"created_at" json:"createdAt"`
}

// UnreadCounts summarises what a user has not read yet.
type UnreadCounts struct {
	Messages      int64 `json:"messages"`
	Notifications int64 `json:"notifications"`
	Total         int64 `json:"total"`
}
