// Package metrics holds the Prometheus collectors of the KDC server.
//
// A nil *Metrics is valid and records nothing, so services can be built
// without a registry in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cipherlink"

// Metrics groups every collector behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	sessionsIssued   prometheus.Counter
	lifecycle        *prometheus.CounterVec
	pfs              *prometheus.CounterVec
	pendingPFS       prometheus.Gauge
	blocks           prometheus.Counter
	validations      *prometheus.CounterVec
	messages         *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	realtimeSessions prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "kdc", Name: "sessions_issued_total",
			Help: "KDC sessions minted.",
		}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "transitions_total",
			Help: "Session lifecycle transitions by type.",
		}, []string{"type"}),
		pfs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pfs", Name: "handshakes_total",
			Help: "PFS handshake outcomes.",
		}, []string{"outcome"}),
		pendingPFS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pfs", Name: "pending",
			Help: "Ephemeral private keys currently held.",
		}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "blocks_appended_total",
			Help: "Blocks appended to the audit chain.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "validations_total",
			Help: "Chain validations by result.",
		}, []string{"result"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "messages_total",
			Help: "Relayed messages by signature verdict.",
		}, []string{"signature"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Requests rejected by the per-user limiter.",
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		realtimeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "realtime", Name: "connections",
			Help: "Open websocket connections.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsIssued, m.lifecycle, m.pfs, m.pendingPFS, m.blocks, m.validations,
		m.messages, m.rateLimited, m.httpRequests, m.httpDuration, m.realtimeSessions,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionIssued() {
	if m != nil {
		m.sessionsIssued.Inc()
	}
}

func (m *Metrics) Lifecycle(eventType string) {
	if m != nil {
		m.lifecycle.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) PFS(outcome string) {
	if m != nil {
		m.pfs.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) PendingPFS(n int) {
	if m != nil {
		m.pendingPFS.Set(float64(n))
	}
}

func (m *Metrics) BlockAppended() {
	if m != nil {
		m.blocks.Inc()
	}
}

func (m *Metrics) Validation(valid bool) {
	if m != nil {
		m.validations.WithLabelValues(strconv.FormatBool(valid)).Inc()
	}
}

func (m *Metrics) Message(signature string) {
	if m != nil {
		m.messages.WithLabelValues(signature).Inc()
	}
}

func (m *Metrics) RateLimited(op string) {
	if m != nil {
		m.rateLimited.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) HTTP(method, route string, code int, d time.Duration) {
	if m != nil {
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
	}
}

func (m *Metrics) RealtimeConnections(delta int) {
	if m != nil {
		m.realtimeSessions.Add(float64(delta))
	}
}
