package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-trustrag/internal/ports"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware records latency, request counts, and token usage per
// provider, model, and outcome.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)
	if m.collector == nil {
		return response, tokensIn, tokensOut, err
	}

	labels := map[string]string{
		"provider": ProviderOf(m.next),
		"model":    m.next.GetModel(),
		"status":   requestStatus(ctx, err),
	}

	m.collector.RecordHistogram(ports.MetricLLMLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(ports.MetricLLMRequests, 1, labels)

	if err == nil {
		m.collector.RecordCounter(ports.MetricLLMTokens, float64(tokensIn), withLabel(labels, "token_type", "input"))
		m.collector.RecordCounter(ports.MetricLLMTokens, float64(tokensOut), withLabel(labels, "token_type", "output"))
	}

	return response, tokensIn, tokensOut, err
}

func requestStatus(ctx context.Context, err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pe) && pe.Type == ErrorTypeRateLimit:
		return "rate_limited"
	default:
		return "error"
	}
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

func (m *metricsLLM) GetModel() string      { return m.next.GetModel() }
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
func (m *metricsLLM) Unwrap() CoreLLM       { return m.next }
