// Package metrics declares the Prometheus collectors exported by the gate
// server on GET /metrics.
//
// HTTP metrics are labelled by route pattern (r.Pattern, e.g.
// "POST /v1/approvals/{id}/approve"), never the raw URL, so ids in paths
// cannot blow up label cardinality.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// GateEvents counts emitted gate events by {kind, success}.
	GateEvents *prometheus.CounterVec
	// EmitFailures counts events a sink failed to accept, by {kind}.
	EmitFailures *prometheus.CounterVec
	// ApprovalsExpired counts approvals moved to EXPIRED, by {source}
	// ("read" or "sweep").
	ApprovalsExpired *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	GRPCRequests *prometheus.CounterVec
}

// New registers the collectors with reg.  Pass prometheus.DefaultRegisterer
// in production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GateEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_gate_events_total",
				Help: "Gate events emitted, by kind and success.",
			},
			[]string{"kind", "success"},
		),
		EmitFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_event_emit_failures_total",
				Help: "Gate events that could not be delivered to a sink, by kind.",
			},
			[]string{"kind"},
		),
		ApprovalsExpired: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_approvals_expired_total",
				Help: "Exit approvals transitioned to EXPIRED, by source.",
			},
			[]string{"source"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "HTTP requests processed, by method, route pattern and status code.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_request_duration_seconds",
				Help:    "HTTP request latency, by method and route pattern.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		GRPCRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_grpc_requests_total",
				Help: "gRPC unary calls handled, by full method and status code.",
			},
			[]string{"method", "code"},
		),
	}
}
