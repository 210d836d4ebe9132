// Package monitoring exposes Prometheus metrics for the terminal service.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsReaped  prometheus.Counter

	// Bridge metrics
	WSConnections   prometheus.Gauge
	BytesRelayed    *prometheus.CounterVec
	CommandsBlocked prometheus.Counter
}

// NewMetrics registers collectors on the given registerer. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandterm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandterm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandterm_sessions_active",
				Help: "Number of registered sessions",
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandterm_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsReaped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandterm_sessions_reaped_total",
				Help: "Total number of sessions terminated by the idle reaper",
			},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandterm_ws_connections",
				Help: "Number of open terminal WebSocket connections",
			},
		),
		BytesRelayed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandterm_bytes_relayed_total",
				Help: "Bytes relayed between transport and sandbox",
			},
			[]string{"direction"}, // "input" or "output"
		),
		CommandsBlocked: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandterm_commands_blocked_total",
				Help: "Commands refused by the deny-list filter",
			},
		),
	}
}
