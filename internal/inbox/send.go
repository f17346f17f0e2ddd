package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/normalize"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

// State is where a send attempt ended up.
type State string

const (
	StatePending              State = "pending"
	StatePersisted            State = "persisted"
	StateDelivered            State = "delivered"
	StatePersistedNoRecipient State = "persisted-no-recipient"
	StateFailed               State = "failed"
	StateTimedOut             State = "timed-out"
)

// SendRequest is what a client submits. The sender is never part of it.
type SendRequest struct {
	RecipientID     string           `json:"recipientId"`
	Content         string           `json:"content"`
	ContentKind     data.ContentKind `json:"contentKind,omitempty"`
	ClientMessageID string           `json:"clientMessageId,omitempty"`
}

// SendResult is the answer to a send attempt. A failed result carries
// ErrorKind; a timed-out one says nothing about persistence, which may
// still complete.
type SendResult struct {
	Success         bool              `json:"success"`
	State           State             `json:"state"`
	Message         *data.Message     `json:"message,omitempty"`
	ClientMessageID string            `json:"clientMessageId,omitempty"`
	Duplicate       bool              `json:"duplicate,omitempty"`
	ErrorKind       string            `json:"errorKind,omitempty"`
	Error           string            `json:"error,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
}

func failed(req SendRequest, err error) SendResult {
	return SendResult{
		State:           StateFailed,
		ClientMessageID: req.ClientMessageID,
		ErrorKind:       apperr.Kind(err),
		Error:           errorMessage(err),
		Details:         apperr.DetailsOf(err),
	}
}

func errorMessage(err error) string {
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

// SendMessage validates, gates, persists and delivers one direct message
// from senderID. It waits at most the configured send timeout. The
// persistence work is detached from ctx: once started it runs to
// completion or to its own store timeout even if the caller goes away,
// and only the push to the recipient depends on who is still online.
func (s *Service) SendMessage(ctx context.Context, senderID string, req SendRequest) SendResult {
	start := time.Now()
	senderID = normalize.UserID(senderID)
	req.RecipientID = normalize.UserID(req.RecipientID)
	req.ClientMessageID = strings.TrimSpace(req.ClientMessageID)
	if req.ContentKind == "" {
		req.ContentKind = data.KindText
	}

	res := s.sendWithTimeout(ctx, senderID, req)
	s.observeSend(res, time.Since(start))
	return res
}

func (s *Service) sendWithTimeout(ctx context.Context, senderID string, req SendRequest) SendResult {
	if err := s.validate(senderID, req); err != nil {
		return failed(req, err)
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	done := make(chan SendResult, 1)
	go func() {
		defer cancel()
		if err := s.checkRecipient(work, req.RecipientID); err != nil {
			done <- failed(req, err)
			return
		}
		done <- s.send(work, senderID, req)
	}()

	timer := time.NewTimer(s.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-timer.C:
	case <-ctx.Done():
	}

	s.log.WithFields(logrus.Fields{
		"sender_id":         senderID,
		"recipient_id":      req.RecipientID,
		"client_message_id": req.ClientMessageID,
	}).Warn("send not confirmed in time; persistence continues in background")
	return SendResult{
		State:           StateTimedOut,
		ClientMessageID: req.ClientMessageID,
		ErrorKind:       apperr.KindTimeout,
		Error:           "send was not confirmed in time; check history before resending",
	}
}

// validate checks the request fields. It does no I/O.
func (s *Service) validate(senderID string, req SendRequest) error {
	switch {
	case senderID == "":
		return apperr.InvalidArg("sender identity is required")
	case req.RecipientID == "":
		return apperr.InvalidArg("recipientId is required")
	case req.RecipientID == senderID:
		return apperr.InvalidArg("cannot send a message to yourself")
	case strings.TrimSpace(req.Content) == "":
		return apperr.InvalidArg("content is required")
	case len(req.Content) > s.cfg.MaxContentLength:
		return apperr.InvalidArg(fmt.Sprintf("content exceeds %d bytes", s.cfg.MaxContentLength))
	case !req.ContentKind.Valid():
		return apperr.InvalidArg(fmt.Sprintf("unknown content kind %q", req.ContentKind))
	}
	return nil
}

// checkRecipient looks the recipient up in the directory, when one is
// configured. It runs inside the send time budget.
func (s *Service) checkRecipient(ctx context.Context, recipientID string) error {
	if s.users == nil {
		return nil
	}
	ok, err := s.users.UserExists(ctx, recipientID)
	if err != nil {
		return apperr.Persistence("could not verify recipient", err)
	}
	if !ok {
		return apperr.NotFound("recipient not found")
	}
	return nil
}

// send runs the durable part of a send. Checks and persistence for one
// sender/recipient direction are serialised so two concurrent sends cannot
// both pass a closed gate.
func (s *Service) send(ctx context.Context, senderID string, req SendRequest) SendResult {
	log := s.log.WithFields(logrus.Fields{
		"sender_id":    senderID,
		"recipient_id": req.RecipientID,
	})

	unlock := s.pairs.Lock(senderID + "\x00" + req.RecipientID)
	msg, dup, err := s.persist(ctx, senderID, req)
	unlock()
	if err != nil {
		res := failed(req, err)
		log.WithField("error_kind", res.ErrorKind).WithError(err).Info("send rejected")
		return res
	}
	if dup {
		log.WithField("message_id", msg.ID.Hex()).Debug("duplicate send")
		return SendResult{
			Success:         true,
			State:           StatePersisted,
			Message:         msg,
			ClientMessageID: req.ClientMessageID,
			Duplicate:       true,
		}
	}

	if _, err := s.tracker.Upsert(ctx, senderID, req.RecipientID, msg); err != nil {
		res := failed(req, err)
		res.Message = msg
		log.WithError(err).Error("message persisted but conversation update failed")
		return res
	}

	state := StatePersistedNoRecipient
	if s.deliver(req.RecipientID, push.Event{Name: push.EventMessageNew, Payload: msg}) {
		state = StateDelivered
	}
	log.WithFields(logrus.Fields{"message_id": msg.ID.Hex(), "state": state}).Debug("message sent")

	return SendResult{
		Success:         true,
		State:           state,
		Message:         msg,
		ClientMessageID: req.ClientMessageID,
	}
}

// persist returns the stored message and whether it already existed under
// the same client message id.
func (s *Service) persist(ctx context.Context, senderID string, req SendRequest) (*data.Message, bool, error) {
	if req.ClientMessageID != "" {
		prev, err := s.msgs.FindByClientID(ctx, senderID, req.ClientMessageID)
		if err == nil {
			return sameSend(prev, req)
		}
		if !errors.Is(err, data.ErrNotFound) {
			return nil, false, apperr.Persistence("could not check for a duplicate send", err)
		}
	}

	if err := s.gate.check(ctx, senderID, req.RecipientID); err != nil {
		return nil, false, err
	}

	msg := &data.Message{
		ID:          bson.NewObjectID(),
		SenderID:    senderID,
		ReceiverID:  req.RecipientID,
		Content:     req.Content,
		Kind:        req.ContentKind,
		ClientMsgID: req.ClientMessageID,
		CreatedAt:   s.now(),
	}
	err := s.msgs.CreateMessage(ctx, msg)
	if errors.Is(err, data.ErrDuplicate) && req.ClientMessageID != "" {
		prev, ferr := s.msgs.FindByClientID(ctx, senderID, req.ClientMessageID)
		if ferr != nil {
			return nil, false, apperr.Persistence("could not load duplicate send", ferr)
		}
		return sameSend(prev, req)
	}
	if err != nil {
		return nil, false, apperr.Persistence("could not save message", err)
	}
	return msg, false, nil
}

// sameSend accepts prev as the earlier copy of req. A client message id is
// unique per sender, so reusing it for another recipient is a client error.
func sameSend(prev *data.Message, req SendRequest) (*data.Message, bool, error) {
	if prev.ReceiverID != req.RecipientID {
		return nil, false, apperr.InvalidArg("clientMessageId was already used for another recipient")
	}
	return prev, true, nil
}

func (s *Service) observeSend(res SendResult, took time.Duration) {
	if s.metrics == nil {
		return
	}
	outcome := string(res.State)
	switch {
	case res.Duplicate:
		outcome = "duplicate"
	case !res.Success:
		outcome = res.ErrorKind
	}
	s.metrics.Sends.WithLabelValues(outcome).Inc()
	s.metrics.SendDuration.Observe(took.Seconds())
}
