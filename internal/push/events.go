// Package push defines the events exchanged over a client connection and
// the frame they travel in.
package push

import (
	"encoding/json"
	"errors"
)

// Events pushed by the server.
const (
	EventMessageNew      = "message:new"
	EventMessageSentAck  = "message:sent-ack"
	EventReadAck         = "read:ack"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventNotificationNew = "notification:new"
	EventPresenceOnline  = "presence:online"
	EventPresenceOffline = "presence:offline"
	EventAck             = "ack"
	EventError           = "error"
)

// Requests sent by the client. typing:start and typing:stop share their
// names with the events relayed to the recipient.
const (
	RequestSendMessage         = "message:send"
	RequestMarkRead            = "message:read"
	RequestTypingStart         = EventTypingStart
	RequestTypingStop          = EventTypingStop
	RequestConversations       = "conversations:list"
	RequestHistory             = "messages:history"
	RequestNotifications       = "notifications:list"
	RequestNotificationsRead   = "notifications:read"
	RequestNotificationsDelete = "notifications:delete"
	RequestUnreadCount         = "unread:count"
)

// Event is a tagged payload pushed to a connection.
type Event struct {
	Name    string
	Payload any
}

// Frame is the wire unit on a connection, in both directions. A request
// with a non-zero Ack gets exactly one reply frame carrying the same Ack.
type Frame struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var ErrEmptyEvent = errors.New("frame has no event name")

// NewFrame encodes payload into a frame.
func NewFrame(event string, ack uint64, payload any) (Frame, error) {
	if event == "" {
		return Frame{}, ErrEmptyEvent
	}
	f := Frame{Event: event, Ack: ack}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Data = raw
	}
	return f, nil
}

// FrameOf encodes a pushed event.
func FrameOf(e Event) (Frame, error) {
	return NewFrame(e.Name, 0, e.Payload)
}

// Decode unmarshals the frame data into v. An empty payload leaves v untouched.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, v)
}
