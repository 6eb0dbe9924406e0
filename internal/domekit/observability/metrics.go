package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are Prometheus series registered under the "domekit" namespace and
// exposed at /v1/domekit/metrics/prom. No package in this module increments,
// observes, or reads them (the derived JSON view in
// internal/domekit/views/metrics is computed from audit entries instead), so
// every series reports zero.
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domekit",
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Total number of gateway requests processed, by outcome.",
		},
		[]string{"outcome"}, // "ok", "error", "timeout"
	)

	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "domekit",
			Subsystem: "router",
			Name:      "request_latency_seconds",
			Help:      "End-to-end gateway request latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"model"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domekit",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total number of tool invocations, by tool and policy verdict.",
		},
		[]string{"tool", "verdict"},
	)

	ToolCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "domekit",
			Subsystem: "tool",
			Name:      "call_latency_seconds",
			Help:      "Tool invocation latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"tool"},
	)

	PolicyDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domekit",
			Subsystem: "policy",
			Name:      "denials_total",
			Help:      "Total number of policy checks that resolved to deny, by rule.",
		},
		[]string{"rule"},
	)

	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "domekit",
			Subsystem: "router",
			Name:      "active_requests",
			Help:      "Number of gateway requests currently in flight.",
		},
	)
)
