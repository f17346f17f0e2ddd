package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/inbox"
	"github.com/PaulBabatuyi/inboxd/internal/metrics"
	"github.com/PaulBabatuyi/inboxd/internal/presence"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

// Inbox is the part of the messaging core a connection can reach.
type Inbox interface {
	SendMessage(ctx context.Context, senderID string, req inbox.SendRequest) inbox.SendResult
	MarkRead(ctx context.Context, readerID, counterpartID string) (int64, error)
	StartTyping(fromID, toID string)
	StopTyping(fromID, toID string)
	ListConversations(ctx context.Context, userID string, limit int64) ([]*data.ConversationSummary, error)
	History(ctx context.Context, userID, withID string, before time.Time, limit int64) ([]*data.Message, error)
	ListNotifications(ctx context.Context, userID string, kind data.NotificationKind, page, limit int64) (*inbox.NotificationPage, error)
	MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error)
	DeleteNotification(ctx context.Context, userID, id string) error
	UnreadCounts(ctx context.Context, userID string) (data.UnreadCounts, error)
}

// Handler serves authenticated sessions.
type Handler struct {
	inbox    Inbox
	presence *presence.Registry
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
}

// NewHandler creates a Handler. m may be nil.
func NewHandler(ib Inbox, reg *presence.Registry, m *metrics.Metrics, log logrus.FieldLogger) *Handler {
	return &Handler{inbox: ib, presence: reg, metrics: m, log: log.WithField("component", "gateway")}
}

// Serve registers sess as its user's connection, then reads frames with
// recv and dispatches them until recv fails, ctx ends or the session is
// closed. On return the registry entry is removed only if it still belongs
// to sess. A clean end of stream returns nil; a session closed under the
// reader returns ErrSessionClosed. recv may still be blocked when Serve
// returns, so the transport must unblock it by closing the connection.
func (h *Handler) Serve(ctx context.Context, sess *Session, recv func() (push.Frame, error)) error {
	log := h.log.WithFields(logrus.Fields{
		"user_id":   sess.UserID(),
		"conn_id":   sess.ID(),
		"transport": sess.Transport(),
	})

	if h.metrics != nil {
		h.metrics.Connections.WithLabelValues(sess.Transport()).Inc()
		defer h.metrics.Connections.WithLabelValues(sess.Transport()).Dec()
	}
	if prev := h.presence.Register(sess.UserID(), sess); prev == nil {
		h.presence.Broadcast(push.Event{Name: push.EventPresenceOnline, Payload: push.UserRef{UserID: sess.UserID()}}, sess.UserID())
	} else {
		log.WithField("replaced_conn_id", prev.ID()).Info("connection replaced")
	}
	log.Info("client connected")

	defer func() {
		if h.presence.UnregisterConn(sess.UserID(), sess) {
			h.presence.Broadcast(push.Event{Name: push.EventPresenceOffline, Payload: push.UserRef{UserID: sess.UserID()}}, sess.UserID())
		}
		sess.Close()
		log.Info("client disconnected")
	}()

	frames := make(chan push.Frame)
	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := recv()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-sess.Done():
				return
			}
		}
	}()

	for {
		select {
		case f := <-frames:
			h.dispatch(ctx, sess, f)
		case err := <-readErr:
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			log.Warn("session closed by server")
			return ErrSessionClosed
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, sess *Session, f push.Frame) {
	user := sess.UserID()

	switch f.Event {
	case push.RequestSendMessage:
		var req inbox.SendRequest
		if err := f.Decode(&req); err != nil {
			h.reply(sess, f.Ack, nil, apperr.InvalidArg("malformed message:send payload"))
			return
		}
		if !sess.acquireSend() {
			h.sendAck(sess, f.Ack, inbox.SendResult{
				State:           inbox.StateFailed,
				ClientMessageID: req.ClientMessageID,
				ErrorKind:       apperr.KindBusy,
				Error:           "too many sends in flight",
				Details:         map[string]string{"code": string(apperr.CodeResourceExhausted)},
			})
			return
		}
		go func() {
			defer sess.releaseSend()
			h.sendAck(sess, f.Ack, h.inbox.SendMessage(ctx, user, req))
		}()

	case push.RequestMarkRead:
		var req counterpartRequest
		if err := f.Decode(&req); err != nil {
			h.reply(sess, f.Ack, nil, apperr.InvalidArg("malformed message:read payload"))
			return
		}
		n, err := h.inbox.MarkRead(ctx, user, req.CounterpartID)
		h.reply(sess, f.Ack, countResult{Updated: n}, err)

	case push.RequestTypingStart, push.RequestTypingStop:
		var req typingRequest
		if err := f.Decode(&req); err != nil {
			return
		}
		if f.Event == push.RequestTypingStart {
			h.inbox.StartTyping(user, req.RecipientID)
		} else {
			h.inbox.StopTyping(user, req.RecipientID)
		}

	case push.RequestConversations:
		var req listRequest
		_ = f.Decode(&req)
		convs, err := h.inbox.ListConversations(ctx, user, req.Limit)
		h.reply(sess, f.Ack, convs, err)

	case push.RequestHistory:
		var req historyRequest
		if err := f.Decode(&req); err != nil {
			h.reply(sess, f.Ack, nil, apperr.InvalidArg("malformed messages:history payload"))
			return
		}
		msgs, err := h.inbox.History(ctx, user, req.CounterpartID, req.Before, req.Limit)
		h.reply(sess, f.Ack, msgs, err)

	case push.RequestNotifications:
		var req notificationsRequest
		if err := f.Decode(&req); err != nil {
			h.reply(sess, f.Ack, nil, apperr.InvalidArg("malformed notifications:list payload"))
			return
		}
		page, err := h.inbox.ListNotifications(ctx, user, req.Kind, req.Page, req.Limit)
		h.reply(sess, f.Ack, page, err)

	case push.RequestNotificationsRead:
		var req notificationIDsRequest
		if err := f.Decode(&req); err != nil {
			h.reply(sess, f.Ack, nil, apperr.InvalidArg("malformed notifications:read payload"))
			return
		}
		n, err := h.inbox.MarkNotificationsRead(ctx, user, req.IDs)
		h.reply(sess, f.Ack, countResult{Updated: n}, err)

	case push.RequestNotificationsDelete:
		var req notificationIDRequest
		if err := f.Decode(&req); err != nil {
			h.reply(sess, f.Ack, nil, apperr.InvalidArg("malformed notifications:delete payload"))
			return
		}
		h.reply(sess, f.Ack, nil, h.inbox.DeleteNotification(ctx, user, req.ID))

	case push.RequestUnreadCount:
		counts, err := h.inbox.UnreadCounts(ctx, user)
		h.reply(sess, f.Ack, counts, err)

	default:
		h.reply(sess, f.Ack, nil, apperr.InvalidArg("unknown event "+f.Event))
	}
}

// sendAck reports the outcome of a message:send request.
func (h *Handler) sendAck(sess *Session, ack uint64, res inbox.SendResult) {
	fr, err := push.NewFrame(push.EventMessageSentAck, ack, res)
	if err == nil {
		err = sess.enqueue(fr)
	}
	if err != nil {
		h.log.WithField("user_id", sess.UserID()).WithError(err).Warn("could not deliver send result")
	}
}

// reply answers a request. Requests without an ack id only hear back
// when they failed, as an error frame.
func (h *Handler) reply(sess *Session, ack uint64, result any, err error) {
	var fr push.Frame
	var ferr error
	switch {
	case ack != 0:
		r := push.Reply{Success: err == nil, Result: result}
		if err != nil {
			r.Result = nil
			r.Error = errorPayload(err)
		}
		fr, ferr = push.NewFrame(push.EventAck, ack, r)
	case err != nil:
		fr, ferr = push.NewFrame(push.EventError, 0, errorPayload(err))
	default:
		return
	}
	if ferr == nil {
		ferr = sess.enqueue(fr)
	}
	if ferr != nil {
		h.log.WithField("user_id", sess.UserID()).WithError(ferr).Debug("reply dropped")
	}
}

func errorPayload(err error) *push.ErrorPayload {
	p := &push.ErrorPayload{Code: string(apperr.CodeOf(err)), Message: err.Error(), Details: apperr.DetailsOf(err)}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		p.Message = ae.Message
	}
	return p
}
