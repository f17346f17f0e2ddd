package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/PaulBabatuyi/inboxd/internal/auth"
	"github.com/PaulBabatuyi/inboxd/internal/config"
	"github.com/PaulBabatuyi/inboxd/internal/logging"
	"github.com/PaulBabatuyi/inboxd/internal/push"
)

const (
	bufSize        = 1024 * 1024
	testServiceKey = "collaborator-key"
)

// testConfig is a memory-backed configuration for in-process servers.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := auth.HashServiceKey(testServiceKey)
	require.NoError(t, err)
	return &config.Config{
		StorageDriver:    config.DriverMemory,
		JWTSecret:        "test-secret",
		TokenTTL:         time.Hour,
		RateLimitRPM:     600,
		SendTimeout:      2 * time.Second,
		StoreTimeout:     5 * time.Second,
		MaxContentLength: 4096,
		OutboxSize:       32,
		ServiceKeyHash:   hash,
		LogLevel:         "error",
		LogFormat:        "text",
	}
}

type testServer struct {
	app  *app
	conn *grpc.ClientConn
}

// startServer serves the gRPC API of a fresh app over bufconn.
func startServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	a, err := newApp(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(a.limiter.Stop)
	t.Cleanup(func() { _ = a.close(context.Background()) })

	gs, err := a.grpcServer()
	require.NoError(t, err)
	lis := bufconn.Listen(bufSize)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testServer{app: a, conn: conn}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := s.app.tokens.GenerateToken(userID)
	require.NoError(t, err)
	return tok
}

// connect opens a Connect stream with the given bearer token.
func (s *testServer) connect(t *testing.T, token string) grpc.ClientStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	cs, err := s.conn.NewStream(ctx, &inboxServiceDesc.Streams[0], methodConnect)
	require.NoError(t, err)
	return cs
}

// connectUser opens a stream for userID and waits until it is registered.
func (s *testServer) connectUser(t *testing.T, userID string) *streamClient {
	t.Helper()
	cs := s.connect(t, s.token(t, userID))
	require.Eventually(t, func() bool { return s.app.presence.IsOnline(userID) }, 2*time.Second, 5*time.Millisecond)
	c := &streamClient{cs: cs, frames: make(chan push.Frame, 64)}
	go func() {
		for {
			var f push.Frame
			if err := cs.RecvMsg(&f); err != nil {
				close(c.frames)
				return
			}
			c.frames <- f
		}
	}()
	return c
}

func (s *testServer) serviceCtx(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), serviceKeyHeader, key)
}

type streamClient struct {
	cs     grpc.ClientStream
	frames chan push.Frame
}

func (c *streamClient) send(t *testing.T, event string, ack uint64, payload any) {
	t.Helper()
	f, err := push.NewFrame(event, ack, payload)
	require.NoError(t, err)
	require.NoError(t, c.cs.SendMsg(&f))
}

func (c *streamClient) waitFor(t *testing.T, event string) push.Frame {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-c.frames:
			require.True(t, ok, "stream closed while waiting for %s", event)
			if f.Event == event {
				return f
			}
		case <-timeout:
			t.Fatalf("no %s frame", event)
		}
	}
}
