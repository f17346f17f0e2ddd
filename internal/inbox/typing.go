package inbox

import (
	"github.com/PaulBabatuyi/inboxd/internal/normalize"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

// StartTyping relays a typing:start hint from fromID to toID if toID is
// online. Nothing is stored and nothing is reported back.
func (s *Service) StartTyping(fromID, toID string) {
	s.relayTyping(push.EventTypingStart, fromID, toID)
}

// StopTyping relays a typing:stop hint.
func (s *Service) StopTyping(fromID, toID string) {
	s.relayTyping(push.EventTypingStop, fromID, toID)
}

func (s *Service) relayTyping(event, fromID, toID string) {
	fromID, toID = normalize.UserID(fromID), normalize.UserID(toID)
	if _, _, err := normalize.Pair(fromID, toID); err != nil {
		return
	}
	s.deliver(toID, push.Event{Name: event, Payload: push.UserRef{UserID: fromID}})
}
