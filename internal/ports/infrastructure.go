package ports

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64 (0.0-1.0)
	//   - "max_tokens": int
	//   - "system": string
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// CacheStore defines the interface for caching values such as query
// embeddings. Implementations use Redis or in-memory storage.
type CacheStore interface {
	// Get retrieves a cached value by key.
	// Returns the value and true if found, or nil and false if not found.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores a value in the cache with an expiration time.
	// A zero duration means the item doesn't expire.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Delete removes a value from the cache.
	// Returns nil if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like eval scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// Metric names recorded through MetricsCollector.
const (
	MetricQueries           = "rag_queries_total"
	MetricStageLatency      = "rag_stage"
	MetricEvalScore         = "rag_eval_score"
	MetricRetrievedPassages = "rag_retrieved_passages"
	MetricLLMRequests       = "llm_requests_total"
	MetricLLMTokens         = "llm_tokens_total"
	MetricLLMLatency        = "llm_latency_seconds"
)
