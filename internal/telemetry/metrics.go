package telemetry

import "github.com/prometheus/client_golang/prometheus"

const namespace = "preflight"

var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by method, route and status.",
	},
	[]string{"method", "route", "status"},
)

var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

var EvaluationDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evaluation",
		Name:      "decisions_total",
		Help:      "Total evaluate decisions by outcome.",
	},
	[]string{"decision"},
)

var TemplateMatchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "template",
		Name:      "matches_total",
		Help:      "Total template match attempts by outcome (matched/unmatched).",
	},
	[]string{"outcome"},
)

var DriftScore = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "evaluation",
		Name:      "drift_score",
		Help:      "Distribution of computed drift scores.",
		Buckets:   []float64{0.05, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.7, 1.0},
	},
)

var ReliabilityScore = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "evaluation",
		Name:      "reliability_score",
		Help:      "Distribution of computed reliability scores for matched evaluations.",
		Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.98, 1.0},
	},
)

var RateLimitHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "hits_total",
		Help:      "Total rate limit checks by outcome (allowed/denied).",
	},
	[]string{"outcome"},
)

var AuthFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Total authentication failures by reason.",
	},
	[]string{"reason"},
)

var CircuitBreakerState = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "circuit_breaker_open",
		Help:      "1 if the rate limiter's cache circuit breaker is open, else 0.",
	},
)

// All returns every preflight-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		EvaluationDecisionsTotal,
		TemplateMatchesTotal,
		DriftScore,
		ReliabilityScore,
		RateLimitHitsTotal,
		AuthFailuresTotal,
		CircuitBreakerState,
	}
}
