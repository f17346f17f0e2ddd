package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/PaulBabatuyi/inboxd/internal/auth"
	"github.com/PaulBabatuyi/inboxd/internal/metrics"
)

// serviceKeyHeader carries the shared key of internal API callers.
const serviceKeyHeader = "x-service-key"

// context key type for storing the authenticated user id
type userContextKey struct{}

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// userFromContext extracts the authenticated user id, if present.
func userFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userContextKey{}).(string)
	return id, ok && id != ""
}

func firstMD(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// authStreamInterceptor authenticates the Connect stream from its
// "authorization" metadata before the handler runs, so an unauthenticated
// stream never reaches the presence registry.
func authStreamInterceptor(a *auth.Authenticator, m *metrics.Metrics, log logrus.FieldLogger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if info.FullMethod != methodConnect {
			return handler(srv, ss)
		}

		userID, err := a.Authenticate(firstMD(ss.Context(), "authorization"))
		if err != nil {
			if m != nil {
				m.RejectedConnections.WithLabelValues("grpc", "auth").Inc()
			}
			log.WithError(err).Debug("stream rejected")
			return status.Error(codes.Unauthenticated, "unauthenticated")
		}

		wrapped := authenticatedStream{ServerStream: ss, ctx: withUser(ss.Context(), userID)}
		return handler(srv, wrapped)
	}
}

// serviceKeyUnaryInterceptor admits unary calls whose x-service-key
// matches the configured bcrypt hash. With no hash configured the
// internal API is closed.
func serviceKeyUnaryInterceptor(hash string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if hash == "" {
			return nil, status.Error(codes.PermissionDenied, "internal API is disabled")
		}
		key := firstMD(ctx, serviceKeyHeader)
		if key == "" {
			return nil, status.Error(codes.Unauthenticated, "missing service key")
		}
		if err := auth.CheckServiceKey(hash, key); err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid service key")
		}
		return handler(ctx, req)
	}
}

// authenticatedStream wraps grpc.ServerStream to override Context()
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context (with the user id)
func (s authenticatedStream) Context() context.Context { return s.ctx }
