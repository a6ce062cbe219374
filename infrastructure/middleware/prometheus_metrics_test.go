package middleware

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/internal/ports"
)

// newTestMetrics registers a collector on a private registry so tests do
// not collide on the default one.
func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestPrometheusMetrics_Queries(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter(ports.MetricQueries, 1, map[string]string{"outcome": "good"})
	pm.RecordCounter(ports.MetricQueries, 1, map[string]string{"outcome": "good"})
	pm.RecordCounter(ports.MetricQueries, 1, map[string]string{"outcome": "expert"})
	pm.RecordCounter(ports.MetricQueries, 1, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.queries.WithLabelValues("good")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.queries.WithLabelValues("expert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.queries.WithLabelValues("unknown")), "missing labels fall back to unknown")
}

func TestPrometheusMetrics_StageLatencyAndScores(t *testing.T) {
	pm, reg := newTestMetrics(t)

	pm.RecordLatency(ports.MetricStageLatency, 120*time.Millisecond, map[string]string{"stage": "retrieve"})
	pm.RecordLatency(ports.MetricStageLatency, 2*time.Second, map[string]string{"stage": "generate"})
	pm.RecordHistogram(ports.MetricEvalScore, 0.42, map[string]string{"criterion": "trustworthiness"})
	pm.RecordHistogram(ports.MetricRetrievedPassages, 3, nil)

	count, err := testutil.GatherAndCount(reg, "rag_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per stage")

	expected := `
# HELP rag_retrieved_passages Passages kept after the similarity threshold.
# TYPE rag_retrieved_passages histogram
rag_retrieved_passages_bucket{le="0"} 0
rag_retrieved_passages_bucket{le="1"} 0
rag_retrieved_passages_bucket{le="2"} 0
rag_retrieved_passages_bucket{le="3"} 1
rag_retrieved_passages_bucket{le="4"} 1
rag_retrieved_passages_bucket{le="5"} 1
rag_retrieved_passages_bucket{le="6"} 1
rag_retrieved_passages_bucket{le="7"} 1
rag_retrieved_passages_bucket{le="8"} 1
rag_retrieved_passages_bucket{le="9"} 1
rag_retrieved_passages_bucket{le="10"} 1
rag_retrieved_passages_bucket{le="+Inf"} 1
rag_retrieved_passages_sum 3
rag_retrieved_passages_count 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), ports.MetricRetrievedPassages))

	count, err = testutil.GatherAndCount(reg, ports.MetricEvalScore)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusMetrics_LLM(t *testing.T) {
	pm, reg := newTestMetrics(t)
	labels := map[string]string{"provider": "openai", "model": "gpt-4o-mini", "status": "success"}

	pm.RecordCounter(ports.MetricLLMRequests, 1, labels)
	pm.RecordCounter(ports.MetricLLMTokens, 120, map[string]string{"provider": "openai", "model": "gpt-4o-mini", "token_type": "input"})
	pm.RecordCounter(ports.MetricLLMTokens, 30, map[string]string{"provider": "openai", "model": "gpt-4o-mini", "token_type": "output"})
	pm.RecordHistogram(ports.MetricLLMLatency, 0.8, labels)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.llmRequests.WithLabelValues("openai", "gpt-4o-mini", "success")))
	assert.Equal(t, 120.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("openai", "gpt-4o-mini", "input")))
	assert.Equal(t, 30.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("openai", "gpt-4o-mini", "output")))

	count, err := testutil.GatherAndCount(reg, ports.MetricLLMLatency)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusMetrics_CircuitBreaker(t *testing.T) {
	pm, _ := newTestMetrics(t)

	tests := []struct {
		state string
		want  float64
	}{
		{state: "closed", want: 0},
		{state: "half-open", want: 1},
		{state: "open", want: 2},
		{state: "bogus", want: -1},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			pm.RecordState("openai", tt.state)
			assert.Equal(t, tt.want, testutil.ToFloat64(pm.breakerState.WithLabelValues("openai")))
		})
	}

	pm.RecordTrip("openai")
	pm.RecordTrip("openai")
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.breakerRejects.WithLabelValues("openai")))
}

func TestPrometheusMetrics_GenericFallbacks(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter("index_chunks_written", 42, nil)
	pm.RecordGauge("expert_entries", 7, map[string]string{"ignored": "x"})
	pm.RecordLatency("index_build", 3*time.Second, nil)
	pm.RecordHistogram("batch_size", 100, nil)

	assert.Equal(t, 42.0, testutil.ToFloat64(pm.operationCounter.WithLabelValues("index_chunks_written")))
	assert.Equal(t, 7.0, testutil.ToFloat64(pm.systemGauges.WithLabelValues("expert_entries")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.operationLatency, "trustrag_operation_duration_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.observations, "trustrag_observations"))
}

func TestNewPrometheusMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)

	assert.Panics(t, func() { NewPrometheusMetrics(reg) },
		"promauto panics when the same series are registered twice")
}
