// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RunDuration tracks discussion run duration from start to terminal state.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discussion_run_duration_seconds",
			Help:    "Discussion run duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"outcome"},
	)

	// RunsTotal tracks discussion runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discussion_runs_total",
			Help: "Total discussion runs by outcome",
		},
		[]string{"outcome"},
	)

	// StrategyAttemptsTotal tracks generation strategy attempts.
	StrategyAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_strategy_attempts_total",
			Help: "Generation strategy attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// WSConnectionsActive tracks active WebSocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	// WorldGenerationsTotal tracks keyword-driven world generations by source.
	WorldGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "world_generations_total",
			Help: "Total world generations by source",
		},
		[]string{"source"},
	)

	// SnapshotsActive tracks live entries in the progress registry.
	SnapshotsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "progress_snapshots_active",
			Help: "Number of live run snapshots in the progress registry",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRun records metrics for a finished discussion run.
func RecordRun(outcome string, duration float64) {
	RunDuration.WithLabelValues(outcome).Observe(duration)
	RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordStrategyAttempt records one generation strategy attempt.
func RecordStrategyAttempt(strategy, outcome string) {
	StrategyAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordWorldGeneration records one finished world generation.
func RecordWorldGeneration(source string) {
	WorldGenerationsTotal.WithLabelValues(source).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

// IncrementWSConnections increments the active WebSocket connection count.
func IncrementWSConnections() {
	WSConnectionsActive.Inc()
}

// DecrementWSConnections decrements the active WebSocket connection count.
func DecrementWSConnections() {
	WSConnectionsActive.Dec()
}
