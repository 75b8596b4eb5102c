package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "jmap_client"

// Metrics is a prometheus.Collector for batch exchanges and push events.
// Register it with any registry; a Client without one records nothing.
type Metrics struct {
	batches          *prometheus.CounterVec
	calls            prometheus.Counter
	methodErrors     *prometheus.CounterVec
	exchangeDuration prometheus.Histogram
	sessionRefreshes *prometheus.CounterVec
	pushEvents       *prometheus.CounterVec
}

// NewMetrics returns a new Metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "batches_total",
				Help:      "Batches sent, by outcome.",
			}, []string{"outcome"},
		),
		calls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "calls_total",
				Help:      "Method calls sent in batches.",
			},
		),
		methodErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "method_errors_total",
				Help:      "Per-call method errors returned by the server, by kind.",
			}, []string{"kind"},
		),
		exchangeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "exchange_duration_seconds",
				Help:      "Time spent waiting on the transport for one batch.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		sessionRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "session_refreshes_total",
				Help:      "Session document fetches, by outcome.",
			}, []string{"outcome"},
		),
		pushEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "push_events_total",
				Help:      "Push events dispatched, by event.",
			}, []string{"event"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.batches.Describe(ch)
	m.calls.Describe(ch)
	m.methodErrors.Describe(ch)
	m.exchangeDuration.Describe(ch)
	m.sessionRefreshes.Describe(ch)
	m.pushEvents.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.batches.Collect(ch)
	m.calls.Collect(ch)
	m.methodErrors.Collect(ch)
	m.exchangeDuration.Collect(ch)
	m.sessionRefreshes.Collect(ch)
	m.pushEvents.Collect(ch)
}

// The record methods are nil-safe so the client can call them unconditionally.

func (m *Metrics) batch(outcome string, calls int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.calls.Add(float64(calls))
}

func (m *Metrics) methodError(kind string) {
	if m == nil {
		return
	}
	m.methodErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) exchange(d time.Duration) {
	if m == nil {
		return
	}
	m.exchangeDuration.Observe(d.Seconds())
}

func (m *Metrics) refresh(outcome string) {
	if m == nil {
		return
	}
	m.sessionRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) push(event string) {
	if m == nil {
		return
	}
	m.pushEvents.WithLabelValues(event).Inc()
}
