// Package llm puts hosted language models from several vendors behind the
// ports.LLMClient interface and composes them with middleware for rate
// limiting, retries, circuit breaking, metrics, and tracing.
//
// Providers register a factory under a name ("openai", "anthropic",
// "google", "bedrock"). NewClient builds the provider and wraps it with the
// configured middleware, outermost first:
//
//	client, err := llm.NewClient("bedrock", llm.ClientConfig{
//	    Region: "us-east-1",
//	    Model:  "anthropic.claude-3-haiku-20240307-v1:0",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware(tracer),
//	        llm.MetricsMiddleware(collector),
//	        llm.RetryMiddleware(2, 500*time.Millisecond, 5*time.Second),
//	        llm.CircuitBreakerMiddleware("bedrock", 5, 30*time.Second),
//	    },
//	})
//	answer, err := client.Complete(ctx, prompt, map[string]any{"temperature": 0.0})
package llm

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ahrav/go-trustrag/internal/ports"
)

// CoreLLM is the minimal contract a provider implements. Middleware wraps a
// CoreLLM and returns another.
type CoreLLM interface {
	// DoRequest sends prompt to the model. opts carries request parameters
	// such as "temperature", "max_tokens", and "system". It returns the
	// generated text with input and output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	GetModel() string
	SetModel(model string)
}

// TokenEstimator approximates token counts before a request is made.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig configures a single provider client.
type ClientConfig struct {
	// APIKey authenticates against vendor APIs. Bedrock ignores it and uses
	// the AWS default credential chain.
	APIKey string

	Model string

	// Region selects the AWS region for Bedrock.
	Region string

	// BaseURL overrides the provider endpoint. Empty keeps the default.
	BaseURL string

	// Timeout bounds a single HTTP request. Zero means none.
	Timeout time.Duration

	// TokenEstimator defaults to SimpleTokenEstimator.
	TokenEstimator TokenEstimator

	// Middleware is applied so that the first entry is the outermost.
	Middleware []Middleware
}

// Middleware decorates a CoreLLM with a cross-cutting concern.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.LLMClient on top of a middleware-wrapped provider.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient builds a client for the provider registered as providerType.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}

	return NewClientFromCore(core, config), nil
}

// NewClientFromCore wraps an already constructed CoreLLM with the
// middleware and estimator from config. Provider fields of config are
// ignored.
func NewClientFromCore(core CoreLLM, config ClientConfig) *Client {
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = &SimpleTokenEstimator{}
	}

	return &Client{core: core, estimator: estimator}
}

// Complete returns the model's reply to prompt.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage returns the model's reply together with input and
// output token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens approximates the token count of text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the model of the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the name of the provider at the bottom of the
// middleware chain.
func (c *Client) Provider() string { return ProviderOf(c.core) }

// SimpleTokenEstimator estimates roughly four characters per token.
type SimpleTokenEstimator struct{}

// EstimateTokens implements TokenEstimator.
func (e *SimpleTokenEstimator) EstimateTokens(text string) int {
	return EstimateTokens(text)
}

// ProviderFactory constructs a provider from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory makes a provider available to NewClient.
// It is not safe to call concurrently with NewClient.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// RegisteredProviders lists the provider names NewClient accepts.
func RegisteredProviders() []string {
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ProviderOf walks a middleware chain down to the provider and returns its
// name, or "unknown" when the chain does not end in a named provider.
func ProviderOf(c CoreLLM) string {
	for c != nil {
		if named, ok := c.(interface{ ProviderName() string }); ok {
			return named.ProviderName()
		}
		wrapper, ok := c.(interface{ Unwrap() CoreLLM })
		if !ok {
			break
		}
		c = wrapper.Unwrap()
	}
	return "unknown"
}
