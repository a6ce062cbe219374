package application

import (
	"context"
	"fmt"
	"maps"

	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.Generator = (*LLMGenerator)(nil)

// GenerationOptions are sent with every generation request. Zero values
// leave the provider defaults in place.
type GenerationOptions struct {
	MaxTokens   int
	Temperature *float64
	System      string
}

// LLMGenerator sends a prompt as a single user message to an LLM client.
type LLMGenerator struct {
	client  ports.LLMClient
	options map[string]any
}

// NewGenerator returns a generator backed by client.
func NewGenerator(client ports.LLMClient, opts GenerationOptions) (*LLMGenerator, error) {
	if client == nil {
		return nil, fmt.Errorf("LLM client cannot be nil")
	}

	options := make(map[string]any)
	if opts.MaxTokens > 0 {
		options["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.System != "" {
		options["system"] = opts.System
	}
	return &LLMGenerator{client: client, options: options}, nil
}

// Generate returns the model's completion for prompt. Errors from the
// client are returned unchanged.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.client.Complete(ctx, prompt, maps.Clone(g.options))
}

// Model returns the model identifier of the underlying client.
func (g *LLMGenerator) Model() string { return g.client.GetModel() }
