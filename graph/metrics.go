package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "emailgraph"

// PrometheusMetrics provides production-grade metrics collection for graph runs.
//
// Collected metrics:
//
//  1. runs_total (Counter): completed runs by outcome.
//     Labels: status (completed, failed, cancelled)
//
//  2. inflight_runs (Gauge): runs currently executing.
//
//  3. step_latency_ms (Histogram): node execution duration in milliseconds.
//     Labels: node_id, status (success, error, timeout)
//     Buckets: 1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000 ms
//
//  4. routing_decisions_total (Counter): labels chosen by conditional edges.
//     Labels: node_id, label
//
//  5. node_errors_total (Counter): run failures attributed to a node.
//     Labels: node_id, kind (node, routing, timeout, cancelled, store, max_steps)
//
// Run IDs are deliberately not used as labels; they are unbounded.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.New(g, nil, emitter, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	runs     *prometheus.CounterVec
	inflight prometheus.Gauge

	stepLatency *prometheus.HistogramVec

	routingDecisions *prometheus.CounterVec
	nodeErrors       *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers all collectors with registry.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "runs_total",
		Help:      "Graph runs finished, by outcome",
	}, []string{"status"})

	pm.inflight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "inflight_runs",
		Help:      "Graph runs currently executing",
	})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"node_id", "status"})

	pm.routingDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "routing_decisions_total",
		Help:      "Labels chosen by conditional edges",
	}, []string{"node_id", "label"})

	pm.nodeErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "node_errors_total",
		Help:      "Run failures attributed to a node",
	}, []string{"node_id", "kind"})

	return pm
}

func (pm *PrometheusMetrics) isEnabled() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStepLatency records a node execution duration.
func (pm *PrometheusMetrics) RecordStepLatency(nodeID string, latency time.Duration, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// RecordRoutingDecision counts a label chosen at nodeID.
func (pm *PrometheusMetrics) RecordRoutingDecision(nodeID string, label Label) {
	if !pm.isEnabled() {
		return
	}
	pm.routingDecisions.WithLabelValues(nodeID, string(label)).Inc()
}

// RecordNodeError counts a failure of the given kind at nodeID.
func (pm *PrometheusMetrics) RecordNodeError(nodeID, kind string) {
	if !pm.isEnabled() {
		return
	}
	pm.nodeErrors.WithLabelValues(nodeID, kind).Inc()
}

// RunStarted increments the in-flight gauge. The gauge is maintained even
// while collection is disabled so that Disable and Enable can be called
// during a run without leaving it unbalanced.
func (pm *PrometheusMetrics) RunStarted() {
	if pm == nil {
		return
	}
	pm.inflight.Inc()
}

// RunFinished decrements the in-flight gauge and, when enabled, counts the
// outcome.
func (pm *PrometheusMetrics) RunFinished(status Status) {
	if pm == nil {
		return
	}
	pm.inflight.Dec()
	if pm.isEnabled() {
		pm.runs.WithLabelValues(string(status)).Inc()
	}
}

// Disable stops metric collection.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes metric collection.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset zeroes the gauges. Counters and histograms are cumulative and are not
// reset.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.inflight.Set(0)
}
