// Package middleware provides the observability layer shared by the
// commands: a Prometheus metrics collector, an OpenTelemetry query
// observer, and tracer provider setup.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-trustrag/infrastructure/llm"
	"github.com/ahrav/go-trustrag/internal/ports"
)

// Metric names owned by this package.
const (
	MetricIssues         = "rag_issues_total"
	MetricBreakerState   = "llm_circuit_breaker_state"
	MetricBreakerRejects = "llm_circuit_breaker_rejections_total"
)

// Compile-time verification that PrometheusMetrics implements the collector
// interfaces it is wired to.
var (
	_ ports.MetricsCollector    = (*PrometheusMetrics)(nil)
	_ llm.CircuitBreakerMetrics = (*PrometheusMetrics)(nil)
)

var breakerStates = map[string]float64{"closed": 0, "half-open": 1, "open": 2}

// PrometheusMetrics implements ports.MetricsCollector with Prometheus
// vectors. Known metric names map to dedicated series; anything else lands
// in generic per-name series.
type PrometheusMetrics struct {
	queries      *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
	evalScores   *prometheus.HistogramVec
	passages     prometheus.Histogram
	issues       *prometheus.CounterVec

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	breakerState   *prometheus.GaugeVec
	breakerRejects *prometheus.CounterVec

	operationCounter *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	systemGauges     *prometheus.GaugeVec
	observations     *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collector and registers its series with
// reg. A nil reg uses the default Prometheus registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricQueries,
				Help: "Questions answered, by outcome (good, bad, expert, error).",
			},
			[]string{"outcome"},
		),
		stageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricStageLatency + "_duration_seconds",
				Help:    "Duration of each pipeline stage.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"stage"},
		),
		evalScores: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricEvalScore,
				Help:    "Evaluation scores per criterion.",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"criterion"},
		),
		passages: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    ports.MetricRetrievedPassages,
				Help:    "Passages kept after the similarity threshold.",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			},
		),
		issues: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricIssues,
				Help: "Criteria that failed their threshold.",
			},
			[]string{"criterion"},
		),

		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricLLMRequests,
				Help: "Requests sent to hosted LLMs.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricLLMTokens,
				Help: "Tokens exchanged with hosted LLMs.",
			},
			[]string{"provider", "model", "token_type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricLLMLatency,
				Help:    "Latency of hosted LLM requests.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"provider", "model", "status"},
		),

		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricBreakerState,
				Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"breaker"},
		),
		breakerRejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBreakerRejects,
				Help: "Requests rejected by an open circuit breaker.",
			},
			[]string{"breaker"},
		),

		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trustrag_operations_total",
				Help: "Counters recorded under names without a dedicated series.",
			},
			[]string{"operation"},
		),
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trustrag_operation_duration_seconds",
				Help:    "Latencies recorded under names without a dedicated series.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trustrag_state",
				Help: "Gauges recorded under names without a dedicated series.",
			},
			[]string{"metric"},
		),
		observations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trustrag_observations",
				Help:    "Histogram values recorded under names without a dedicated series.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	switch operation {
	case ports.MetricStageLatency:
		pm.stageLatency.WithLabelValues(labelOr(labels, "stage")).Observe(duration.Seconds())
	case ports.MetricLLMLatency:
		pm.llmLatency.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "model"), labelOr(labels, "status")).
			Observe(duration.Seconds())
	default:
		pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricQueries:
		pm.queries.WithLabelValues(labelOr(labels, "outcome")).Add(value)
	case MetricIssues:
		pm.issues.WithLabelValues(labelOr(labels, "criterion")).Add(value)
	case ports.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "model"), labelOr(labels, "status")).
			Add(value)
	case ports.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "model"), labelOr(labels, "token_type")).
			Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricEvalScore:
		pm.evalScores.WithLabelValues(labelOr(labels, "criterion")).Observe(value)
	case ports.MetricRetrievedPassages:
		pm.passages.Observe(value)
	case ports.MetricLLMLatency:
		pm.llmLatency.WithLabelValues(labelOr(labels, "provider"), labelOr(labels, "model"), labelOr(labels, "status")).
			Observe(value)
	default:
		pm.observations.WithLabelValues(metric).Observe(value)
	}
}

// RecordState implements llm.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordState(name, state string) {
	value, ok := breakerStates[state]
	if !ok {
		value = -1
	}
	pm.breakerState.WithLabelValues(name).Set(value)
}

// RecordTrip implements llm.CircuitBreakerMetrics.
func (pm *PrometheusMetrics) RecordTrip(name string) {
	pm.breakerRejects.WithLabelValues(name).Inc()
}

func labelOr(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}
