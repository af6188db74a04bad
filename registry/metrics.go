package registry

import (
	"net/http"
	"time"

	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry's Prometheus collectors. It uses a private
// registry so that several registries can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	events        *prometheus.CounterVec
	eventsDropped prometheus.Counter
	sessions      *prometheus.GaugeVec
	verifications *prometheus.CounterVec
	verifyLatency prometheus.Histogram
}

// NewMetrics creates and registers the collectors under namespace. An empty
// namespace defaults to "oprf_keygen".
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "oprf_keygen"
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Registry operations by name and result kind.",
		},
		[]string{"op", "result"},
	)
	m.events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Emitted events by kind.",
		},
		[]string{"kind"},
	)
	m.eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events not delivered to a slow subscriber.",
	})
	m.sessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Known key ids by session round.",
		},
		[]string{"round"},
	)
	m.verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_verifications_total",
			Help:      "Round-2 proof verifications by result.",
		},
		[]string{"result"},
	)
	m.verifyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "proof_verification_seconds",
		Help:      "Round-2 proof verification latency.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	m.registry.MustRegister(
		m.operations,
		m.events,
		m.eventsDropped,
		m.sessions,
		m.verifications,
		m.verifyLatency,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeOp(op string, err error) {
	m.operations.WithLabelValues(op, ErrorKind(err)).Inc()
}

func (m *Metrics) observeEvent(kind keygen.EventKind) {
	m.events.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) observeVerify(err error, d time.Duration) {
	m.verifications.WithLabelValues(ErrorKind(err)).Inc()
	m.verifyLatency.Observe(d.Seconds())
}

var allRounds = []keygen.Round{
	keygen.RoundNotStarted,
	keygen.RoundOne,
	keygen.RoundTwo,
	keygen.RoundThree,
	keygen.RoundStuck,
	keygen.RoundDeleted,
}

func (m *Metrics) observeSessions(counts map[keygen.Round]int) {
	for _, r := range allRounds {
		m.sessions.WithLabelValues(r.String()).Set(float64(counts[r]))
	}
}
