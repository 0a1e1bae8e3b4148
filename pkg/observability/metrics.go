// Package observability provides Prometheus metrics for the fleet manager:
// connection lifecycle, circuit-breaker transitions, tool invocations, health
// probes, abort activity, and config-cache effectiveness.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectsTotal counts connection attempts by server and outcome.
	ConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpfleet_connects_total",
			Help: "Server connection attempts",
		},
		[]string{"server", "status"},
	)

	// DisconnectsTotal counts closed connections by server.
	DisconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpfleet_disconnects_total",
			Help: "Server disconnects",
		},
		[]string{"server"},
	)

	// CircuitTransitionsTotal counts breaker state changes by server and
	// destination state.
	CircuitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpfleet_circuit_transitions_total",
			Help: "Circuit breaker transitions",
		},
		[]string{"server", "to"},
	)

	// ToolInvocationsTotal counts tool calls by server and outcome.
	ToolInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpfleet_tool_invocations_total",
			Help: "Tool invocations",
		},
		[]string{"server", "status"},
	)

	// HealthProbeDuration records health-probe latency in seconds by server.
	HealthProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpfleet_health_probe_duration_seconds",
			Help:    "Health probe latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)

	// AbortsTotal counts aborted executions by trigger.
	AbortsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpfleet_aborts_total",
			Help: "Aborted tool executions",
		},
		[]string{"trigger"},
	)

	// CacheRequestsTotal counts config-cache lookups by result.
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpfleet_cache_requests_total",
			Help: "Config cache lookups",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectsTotal,
		DisconnectsTotal,
		CircuitTransitionsTotal,
		ToolInvocationsTotal,
		HealthProbeDuration,
		AbortsTotal,
		CacheRequestsTotal,
	)
}
