package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the Skylift tracker. A nil
// *Metrics is a valid no-op collector, so components can record
// unconditionally.
type Metrics struct {
	config MetricsConfig

	// Operation metrics
	operationsStarted   *prometheus.CounterVec
	operationsCompleted *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec

	// Stream metrics
	eventsClassified    *prometheus.CounterVec
	parseErrors         prometheus.Counter
	connectionsLost     prometheus.Counter
	heartbeatsCoalesced prometheus.Counter
	staleEvents         prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// A nil collector records nothing.
		return nil, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_started_total",
				Help:      "Total number of tracked operations started",
			},
			[]string{"kind"},
		),
		operationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_completed_total",
				Help:      "Total number of tracked operations finished",
			},
			[]string{"kind", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration from operation start to terminal event",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"kind", "outcome"},
		),

		eventsClassified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_classified_total",
				Help:      "Total number of push messages classified",
			},
			[]string{"type"},
		),
		parseErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_errors_total",
				Help:      "Total number of malformed push messages dropped",
			},
		),
		connectionsLost: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_lost_total",
				Help:      "Total number of streams that closed without a terminal event",
			},
		),
		heartbeatsCoalesced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "heartbeats_coalesced_total",
				Help:      "Total number of heartbeat log records coalesced away",
			},
		),
		staleEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_events_total",
				Help:      "Total number of events dropped for inactive operations",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.operationsStarted, m.operationsCompleted, m.operationDuration,
		m.eventsClassified, m.parseErrors, m.connectionsLost,
		m.heartbeatsCoalesced, m.staleEvents,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// RecordOperationStarted counts one started operation.
func (m *Metrics) RecordOperationStarted(kind string) {
	if m == nil {
		return
	}
	m.operationsStarted.WithLabelValues(kind).Inc()
}

// RecordOperationCompleted counts one finished operation and its duration.
func (m *Metrics) RecordOperationCompleted(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operationsCompleted.WithLabelValues(kind, outcome).Inc()
	m.operationDuration.WithLabelValues(kind, outcome).Observe(elapsed.Seconds())
}

// RecordEventClassified counts one classified push message.
func (m *Metrics) RecordEventClassified(eventType string) {
	if m == nil {
		return
	}
	m.eventsClassified.WithLabelValues(eventType).Inc()
}

// RecordParseError counts one malformed push message.
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

// RecordConnectionLost counts one stream that dropped before its terminal
// event.
func (m *Metrics) RecordConnectionLost() {
	if m == nil {
		return
	}
	m.connectionsLost.Inc()
}

// RecordHeartbeatCoalesced counts one heartbeat folded into the previous
// log record.
func (m *Metrics) RecordHeartbeatCoalesced() {
	if m == nil {
		return
	}
	m.heartbeatsCoalesced.Inc()
}

// RecordStaleEvent counts one event dropped because its operation is no
// longer active.
func (m *Metrics) RecordStaleEvent() {
	if m == nil {
		return
	}
	m.staleEvents.Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the metrics HTTP endpoint. It blocks, so callers typically
// run it on its own goroutine.
func (m *Metrics) Serve() error {
	if m == nil {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return http.ListenAndServe(m.config.ListenAddress, mux)
}
