// Package metrics exposes Bumper's Prometheus collectors.
//
// Metrics implements the observer hooks of the relay, the session manager
// and the sweeper, so those packages stay free of Prometheus imports.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/bumper/internal/relay"
)

const namespace = "bumper"

// Metrics holds every collector and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	httpRequests *prometheus.CounterVec   // By route, method and status
	httpDuration *prometheus.HistogramVec // By route

	// Relay
	relayTotal    *prometheus.CounterVec   // By outcome
	relayDuration *prometheus.HistogramVec // By outcome

	// Sessions
	tokensIssued  prometheus.Counter
	tokensRevoked *prometheus.CounterVec // By reason (logout, expired)

	// Sweeper
	sweepRuns    *prometheus.CounterVec // By task and status
	sweepRemoved *prometheus.CounterVec // By task
}

// New creates and registers all collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled",
		}, []string{"route", "method", "status"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		relayTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "commands_total",
			Help:      "Total number of relayed commands",
		}, []string{"outcome"}), // outcome: ok, unreachable, timeout, error

		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "duration_seconds",
			Help:      "Time from publish to reply or failure in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),

		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tokens_issued_total",
			Help:      "Total number of access tokens issued",
		}),

		tokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tokens_revoked_total",
			Help:      "Total number of access tokens revoked",
		}, []string{"reason"}),

		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "task_runs_total",
			Help:      "Total number of sweeper task runs",
		}, []string{"task", "status"}),

		sweepRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "removed_total",
			Help:      "Total number of items removed by sweeper tasks",
		}, []string{"task"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.relayTotal, m.relayDuration,
		m.tokensIssued, m.tokensRevoked,
		m.sweepRuns, m.sweepRemoved,
	)
	return m
}

// Handler returns the exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterGauge registers a gauge whose value is read at scrape time.
func (m *Metrics) RegisterGauge(subsystem, name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

// ObserveHTTP records one handled request.
func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RelayCompleted implements relay.Observer.
func (m *Metrics) RelayCompleted(c relay.Completion) {
	m.relayTotal.WithLabelValues(c.Outcome).Inc()
	m.relayDuration.WithLabelValues(c.Outcome).Observe(c.Latency.Seconds())
}

// TokenIssued implements auth.Observer.
func (m *Metrics) TokenIssued() {
	m.tokensIssued.Inc()
}

// TokensRevoked implements auth.Observer.
func (m *Metrics) TokensRevoked(reason string, n int) {
	m.tokensRevoked.WithLabelValues(reason).Add(float64(n))
}

// SweepTaskCompleted implements maintenance.Observer.
func (m *Metrics) SweepTaskCompleted(task string, removed int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.sweepRuns.WithLabelValues(task, status).Inc()
	if removed > 0 {
		m.sweepRemoved.WithLabelValues(task).Add(float64(removed))
	}
}
