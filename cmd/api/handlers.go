package main

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/inboxd/internal/apperr"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/gateway"
	"github.com/PaulBabatuyi/inboxd/internal/inbox"
	"github.com/PaulBabatuyi/inboxd/internal/metrics"
	"github.com/PaulBabatuyi/inboxd/internal/normalize"
	"github.com/PaulBabatuyi/inboxd/internal/presence"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

// Server implements InboxServer on top of the messaging core.
type Server struct {
	inbox      *inbox.Service
	gateway    *gateway.Handler
	presence   *presence.Registry
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	outboxSize int
}

func newServer(svc *inbox.Service, gw *gateway.Handler, reg *presence.Registry, m *metrics.Metrics, log logrus.FieldLogger, outboxSize int) *Server {
	return &Server{inbox: svc, gateway: gw, presence: reg, metrics: m, log: log, outboxSize: outboxSize}
}

// Connect binds an authenticated stream to its user until either side
// closes it. Frames pushed to the user are written by one goroutine. A
// stream whose outbox overflows ends with ResourceExhausted; returning
// from the handler is what unblocks the pending Recv.
func (s *Server) Connect(stream InboxConnectServer) error {
	userID, ok := userFromContext(stream.Context())
	if !ok {
		return status.Errorf(codes.Unauthenticated, "missing auth claims")
	}

	sess := gateway.NewSession(userID, "grpc", s.outboxSize, s.metrics)
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	written := make(chan error, 1)
	go func() {
		written <- sess.Run(ctx, func(f push.Frame) error { return stream.Send(&f) })
	}()

	err := s.gateway.Serve(ctx, sess, func() (push.Frame, error) {
		f, err := stream.Recv()
		if err != nil {
			return push.Frame{}, err
		}
		return *f, nil
	})
	cancel()
	// no Send may happen after the handler returns
	<-written
	if errors.Is(err, gateway.ErrSessionClosed) {
		return status.Error(codes.ResourceExhausted, "client is not keeping up; reconnect")
	}
	return err
}

// RaiseNotification persists a notification from a collaborating service
// and pushes it to the target user when online.
func (s *Server) RaiseNotification(ctx context.Context, in *inbox.NotificationInput) (*data.Notification, error) {
	n, err := s.inbox.RaiseNotification(ctx, *in)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			s.log.WithError(err).WithField("user_id", in.UserID).Error("raise notification failed")
		}
		return nil, apperr.GRPCStatus(err)
	}
	return n, nil
}

// IsOnline reports whether a user has a live connection.
func (s *Server) IsOnline(_ context.Context, req *IsOnlineRequest) (*IsOnlineResponse, error) {
	id := normalize.UserID(req.UserID)
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	return &IsOnlineResponse{UserID: id, Online: s.presence.IsOnline(id)}, nil
}

// OnlineUsers lists the users with a live connection.
func (s *Server) OnlineUsers(context.Context, *OnlineUsersRequest) (*OnlineUsersResponse, error) {
	ids := s.presence.Online()
	return &OnlineUsersResponse{UserIDs: ids, Count: len(ids)}, nil
}
