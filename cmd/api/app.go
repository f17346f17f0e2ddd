package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/PaulBabatuyi/inboxd/internal/auth"
	"github.com/PaulBabatuyi/inboxd/internal/config"
	"github.com/PaulBabatuyi/inboxd/internal/data"
	"github.com/PaulBabatuyi/inboxd/internal/db"
	"github.com/PaulBabatuyi/inboxd/internal/gateway"
	"github.com/PaulBabatuyi/inboxd/internal/inbox"
	"github.com/PaulBabatuyi/inboxd/internal/memstore"
	"github.com/PaulBabatuyi/inboxd/internal/metrics"
	"github.com/PaulBabatuyi/inboxd/internal/middleware"
	"github.com/PaulBabatuyi/inboxd/internal/presence"
)

// app is the wired server: storage, messaging core and both transports.
type app struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	presence *presence.Registry
	tokens   *auth.JWTManager
	authn    *auth.Authenticator
	inbox    *inbox.Service
	gateway  *gateway.Handler
	limiter  *middleware.LimiterStore

	ping  func(context.Context) error
	close func(context.Context) error
}

// storage holds the store implementations selected by STORAGE_DRIVER.
type storage struct {
	deps  inbox.Deps
	ping  func(context.Context) error
	close func(context.Context) error
}

func openStorage(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*storage, error) {
	if cfg.StorageDriver == config.DriverMemory {
		ms := memstore.New()
		log.Warn("using in-memory storage; data is lost on restart")
		return &storage{
			deps: inbox.Deps{
				Messages:      ms,
				Conversations: ms,
				Notifications: ms,
				Follows:       ms,
			},
			close: func(context.Context) error { return nil },
		}, nil
	}

	client, err := db.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	if err := client.CreateIndexes(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	users := data.NewUsersStore(client.UsersCollection())
	return &storage{
		deps: inbox.Deps{
			Messages:      data.NewMessagesStore(client.MessagesCollection()),
			Conversations: data.NewConversationsStore(client.ConversationsCollection()),
			Notifications: data.NewNotificationsStore(client.NotificationsCollection()),
			Follows:       users,
			Directory:     users,
		},
		ping:  client.Ping,
		close: client.Close,
	}, nil
}

func newTokenManager(cfg *config.Config) *auth.JWTManager {
	if len(cfg.JWTKeys) > 0 {
		return auth.NewJWTManagerFromKeys(cfg.JWTKeys, cfg.JWTActiveKid, cfg.TokenTTL)
	}
	return auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
}

func newApp(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*app, error) {
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	reg := presence.NewRegistry()
	reg.OnChange(func(n int) { m.OnlineUsers.Set(float64(n)) })

	deps := st.deps
	deps.Presence = reg
	deps.Metrics = m
	deps.Log = log
	svc := inbox.New(deps, inbox.Config{
		SendTimeout:      cfg.SendTimeout,
		StoreTimeout:     cfg.StoreTimeout,
		MaxContentLength: cfg.MaxContentLength,
	})

	tokens := newTokenManager(cfg)
	limiter := middleware.NewLimiterStore(cfg.RateLimitRPM, 5, time.Minute)
	limiter.OnReject(func(surface string) {
		switch surface {
		case "grpc-stream":
			m.RejectedConnections.WithLabelValues("grpc", "rate").Inc()
		case "ws":
			m.RejectedConnections.WithLabelValues("ws", "rate").Inc()
		}
	})

	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		presence: reg,
		tokens:   tokens,
		authn:    auth.NewAuthenticator(tokens, log),
		inbox:    svc,
		gateway:  gateway.NewHandler(svc, reg, m, log),
		limiter:  limiter,
		ping:     st.ping,
		close:    st.close,
	}, nil
}

// grpcServer builds the gRPC server with TLS when configured. Stream
// interceptors run rate limit then auth; unary calls are the internal API.
func (a *app) grpcServer() (*grpc.Server, error) {
	var opts []grpc.ServerOption
	if a.cfg.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(a.cfg.TLSCert, a.cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certs: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	opts = append(opts,
		grpc.ChainStreamInterceptor(
			middleware.RateLimitStreamInterceptor(a.limiter, map[string]bool{methodConnect: true}),
			authStreamInterceptor(a.authn, a.metrics, a.log),
		),
		grpc.ChainUnaryInterceptor(
			middleware.RateLimitUnaryInterceptor(a.limiter, map[string]bool{methodRaiseNotification: true}),
			serviceKeyUnaryInterceptor(a.cfg.ServiceKeyHash),
		),
	)

	s := grpc.NewServer(opts...)
	registerService(s, newServer(a.inbox, a.gateway, a.presence, a.metrics, a.log, a.cfg.OutboxSize))
	return s, nil
}

func (a *app) httpHandler() http.Handler {
	ws := newWSHandler(a.authn, a.gateway, a.metrics, a.log, a.cfg.OutboxSize)
	return newHTTPHandler(middleware.RateLimitHTTP(a.limiter, ws), a.metrics, a.presence, a.ping)
}

// run serves both listeners until ctx ends, then shuts down gracefully.
func (a *app) run(ctx context.Context) error {
	defer a.limiter.Stop()
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.close(cctx)
	}()

	gs, err := a.grpcServer()
	if err != nil {
		return err
	}
	glis, err := net.Listen("tcp", ":"+a.cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	hs := &http.Server{Addr: ":" + a.cfg.HTTPPort, Handler: a.httpHandler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		a.log.WithField("addr", glis.Addr().String()).Info("gRPC server listening")
		errCh <- gs.Serve(glis)
	}()
	go func() {
		a.log.WithField("addr", hs.Addr).Info("HTTP server listening")
		var err error
		if a.cfg.TLSEnabled() {
			err = hs.ListenAndServeTLS(a.cfg.TLSCert, a.cfg.TLSKey)
		} else {
			err = hs.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
	}

	a.log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = hs.Shutdown(sctx)
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-sctx.Done():
		gs.Stop()
	}
	return err
}
