package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New returns a Metrics with its own registry. Nothing is registered with
// the prometheus default registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awardpoll",
			Subsystem: "votes",
			Name:      "total",
			Help:      "Vote submissions by result code.",
		}, []string{"result"}),
		divergence: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "awardpoll",
			Subsystem: "tally",
			Name:      "divergence_total",
			Help:      "Contests whose cached tally diverged from the durable store.",
		}),
		reconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "awardpoll",
			Subsystem: "tally",
			Name:      "reconcile_runs_total",
			Help:      "Full reconciliation passes.",
		}),
		repairHints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "awardpoll",
			Subsystem: "cache",
			Name:      "repair_hints_total",
			Help:      "Cache-repair hints emitted after failed cache writes.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "awardpoll",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open).",
		}, []string{"dependency"}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awardpoll",
			Subsystem: "security",
			Name:      "events_total",
			Help:      "Credential security events by kind.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awardpoll",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Served HTTP requests by status code.",
		}, []string{"code"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "awardpoll",
			Subsystem: "http",
			Name:      "response_time",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 1.5, 3.0, 5.0, 10.0},
			Help:      "Histogram of request response times spawning from 10ms to 10s.",
		}),
	}

	m.registry.MustRegister(
		m.votes,
		m.divergence,
		m.reconcileRuns,
		m.repairHints,
		m.breakerState,
		m.securityEvents,
		m.requests,
		m.latency,
	)
	return m
}

// Metrics gathers the application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	votes          *prometheus.CounterVec
	divergence     prometheus.Counter
	reconcileRuns  prometheus.Counter
	repairHints    prometheus.Counter
	breakerState   *prometheus.GaugeVec
	securityEvents *prometheus.CounterVec
	requests       *prometheus.CounterVec
	latency        prometheus.Histogram
}

func (m *Metrics) VoteRecorded(result string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(result).Inc()
}

func (m *Metrics) TallyDiverged() {
	if m == nil {
		return
	}
	m.divergence.Inc()
}

func (m *Metrics) ReconcileRun() {
	if m == nil {
		return
	}
	m.reconcileRuns.Inc()
}

func (m *Metrics) RepairHinted() {
	if m == nil {
		return
	}
	m.repairHints.Inc()
}

// SetBreakerState exports state as 0 closed, 1 half-open, 2 open.
func (m *Metrics) SetBreakerState(dependency string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(dependency).Set(float64(state))
}

func (m *Metrics) SecurityEvent(kind string) {
	if m == nil {
		return
	}
	m.securityEvents.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Count wraps h and records the status code and latency of every request.
func (m *Metrics) Count(h http.Handler) http.Handler {
	if m == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		m.requests.WithLabelValues(strconv.Itoa(sw.status)).Inc()
		m.latency.Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
