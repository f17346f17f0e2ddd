package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/PaulBabatuyi/inboxd/internal/metrics"
	"github.com/PaulBabatuyi/inboxd/internal/presence"
)

// healthTimeout bounds the storage ping behind /healthz.
const healthTimeout = 2 * time.Second

// newHTTPHandler serves the WebSocket endpoint, Prometheus metrics and a
// health check. ping may be nil when storage has nothing to ping.
func newHTTPHandler(ws http.Handler, m *metrics.Metrics, reg *presence.Registry, ping func(context.Context) error) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok", "online": reg.Count()}
		code := http.StatusOK
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				body["status"] = "degraded"
				body["error"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
	return mux
}
