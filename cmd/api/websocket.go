package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/auth"
	"github.com/PaulBabatuyi/inboxd/internal/gateway"
	"github.com/PaulBabatuyi/inboxd/internal/metrics"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

const (
	wsMaxPayloadBytes = 64 << 10
	wsPongWait        = 45 * time.Second
	wsPingPeriod      = 30 * time.Second
	wsWriteWait       = 10 * time.Second
)

// wsHandler serves browser clients. The bearer token comes from the
// Authorization header or the token query parameter and is checked before
// the upgrade, so a rejected client gets a plain 401.
type wsHandler struct {
	auth       *auth.Authenticator
	gateway    *gateway.Handler
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	upgrader   websocket.Upgrader
	outboxSize int
}

func newWSHandler(a *auth.Authenticator, gw *gateway.Handler, m *metrics.Metrics, log logrus.FieldLogger, outboxSize int) *wsHandler {
	return &wsHandler{
		auth:    a,
		gateway: gw,
		metrics: m,
		log:     log.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		outboxSize: outboxSize,
	}
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cred := r.Header.Get("Authorization")
	if cred == "" {
		cred = r.URL.Query().Get("token")
	}
	userID, err := h.auth.Authenticate(cred)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RejectedConnections.WithLabelValues("ws", "auth").Inc()
		}
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("upgrade failed")
		return
	}
	defer conn.Close()

	sess := gateway.NewSession(userID, "ws", h.outboxSize, h.metrics)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	written := make(chan error, 1)
	go func() {
		err := sess.Run(ctx, func(f push.Frame) error {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			return conn.WriteJSON(f)
		})
		if err != nil && ctx.Err() == nil {
			// unblock the reader
			_ = conn.Close()
		}
		written <- err
	}()
	go h.pingLoop(ctx, conn)

	conn.SetReadLimit(wsMaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	err = h.gateway.Serve(ctx, sess, func() (push.Frame, error) {
		return readFrame(conn, sess)
	})
	cancel()
	<-written
	if errors.Is(err, gateway.ErrSessionClosed) {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client is not keeping up")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Debug("websocket closed with error")
	}
}

// readFrame returns the next well-formed frame. Malformed text frames are
// answered with an error frame and skipped.
func readFrame(conn *websocket.Conn, sess *gateway.Session) (push.Frame, error) {
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return push.Frame{}, io.EOF
			}
			return push.Frame{}, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		var f push.Frame
		if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
			_ = sess.Send(push.Event{Name: push.EventError, Payload: push.ErrorPayload{
				Code:    string(apperr.CodeInvalidArgument),
				Message: "malformed frame",
			}})
			continue
		}
		return f, nil
	}
}

func (h *wsHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(wsPingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
