// Package metrics exposes Prometheus instruments for the messaging core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the instruments. All of them live on the metrics' own
// registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Connections is the number of open client connections.
	// Labels: transport (grpc|ws)
	Connections *prometheus.GaugeVec

	// OnlineUsers is the size of the presence registry.
	OnlineUsers prometheus.Gauge

	// Sends counts send attempts by final outcome.
	// Labels: outcome (delivered|persisted-no-recipient|duplicate|validation|permission-denied|timeout|persistence-error)
	Sends *prometheus.CounterVec

	// SendDuration measures how long the caller waited for a send result.
	SendDuration prometheus.Histogram

	// Notifications counts raised notifications.
	// Labels: kind, delivered (true|false)
	Notifications *prometheus.CounterVec

	// DroppedPushes counts events that could not be queued on a connection.
	DroppedPushes prometheus.Counter

	// RejectedConnections counts failed handshakes.
	// Labels: transport, reason (auth|rate)
	RejectedConnections *prometheus.CounterVec
}

// New creates the instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inboxd_connections",
			Help: "Open client connections by transport",
		}, []string{"transport"}),
		OnlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "inboxd_online_users",
			Help: "Users with a registered connection",
		}),
		Sends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inboxd_message_sends_total",
			Help: "Message send attempts by outcome",
		}, []string{"outcome"}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "inboxd_message_send_duration_seconds",
			Help:    "Time until a send attempt was answered",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inboxd_notifications_total",
			Help: "Raised notifications by kind and whether they were pushed live",
		}, []string{"kind", "delivered"}),
		DroppedPushes: f.NewCounter(prometheus.CounterOpts{
			Name: "inboxd_dropped_pushes_total",
			Help: "Events dropped because a connection's outbox was full or closed",
		}),
		RejectedConnections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inboxd_rejected_connections_total",
			Help: "Connection attempts rejected before registration",
		}, []string{"transport", "reason"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
