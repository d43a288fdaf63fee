package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"satsync/pkg/circuitbreaker"
)

const namespace = "satsync"

// Cycle outcomes
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

// Metrics holds every collector the sync engine and HTTP surface report to.
// Each instance owns its registry so tests can build isolated copies.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal         *prometheus.CounterVec
	CycleDuration       *prometheus.HistogramVec
	MailboxErrors       *prometheus.CounterVec
	GatewayCallDuration *prometheus.HistogramVec
	GatewayAlive        *prometheus.GaugeVec
	MessagesStored      *prometheus.CounterVec
	StatusMerges        *prometheus.CounterVec
	Submissions         *prometheus.CounterVec
	OpenCommands        prometheus.Gauge
	StaleCommands       prometheus.Gauge
	BreakerState        *prometheus.GaugeVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New creates a Metrics with its own registry. Go runtime and process
// collectors are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Synchronization cycles by operation and outcome",
		}, []string{"operation", "outcome"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Synchronization cycle duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"operation"}),
		MailboxErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_errors_total",
			Help:      "Mailbox poll failures by operation and error kind",
		}, []string{"operation", "kind"}),
		GatewayCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_call_duration_seconds",
			Help:      "Gateway REST call latency by operation and outcome",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"operation", "outcome"}),
		GatewayAlive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_alive",
			Help:      "1 when the gateway answered its last call, 0 after a transport failure",
		}, []string{"gateway"}),
		MessagesStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages inserted into the store by category",
		}, []string{"category"}),
		StatusMerges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_merges_total",
			Help:      "Forward status merge results",
		}, []string{"result"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Forward message submissions by outcome",
		}, []string{"outcome"}),
		OpenCommands: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_commands",
			Help:      "Mobile-terminated commands not yet closed",
		}),
		StaleCommands: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_commands",
			Help:      "Open commands older than the stale threshold",
		}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Gateway circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"breaker"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveGatewayCall records one gateway round trip
func (m *Metrics) ObserveGatewayCall(operation, outcome string, elapsed time.Duration) {
	m.GatewayCallDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// SetGatewayAlive sets the per-gateway alive gauge
func (m *Metrics) SetGatewayAlive(gateway string, alive bool) {
	v := 0.0
	if alive {
		v = 1
	}
	m.GatewayAlive.WithLabelValues(gateway).Set(v)
}

// RecordCycle records a finished cycle
func (m *Metrics) RecordCycle(operation, outcome string, elapsed time.Duration) {
	m.CyclesTotal.WithLabelValues(operation, outcome).Inc()
	m.CycleDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// BreakerStateChanged matches circuitbreaker.Config.OnStateChange
func (m *Metrics) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}
