package llm

import (
	"sync"
)

// BaseProvider carries the state every provider shares: its registered
// name and the mutable model identifier.
type BaseProvider struct {
	mu    sync.RWMutex
	name  string
	model string
}

// GetModel returns the configured model. It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel replaces the configured model. It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// ProviderName returns the name the provider was registered under.
func (b *BaseProvider) ProviderName() string { return b.name }

// RequestOptions is the normalized form of the options map accepted by
// CoreLLM.DoRequest.
type RequestOptions struct {
	MaxTokens int
	Model     string
	// Temperature and TopP are nil when the provider default applies.
	Temperature *float64
	TopP        *float64
	System      string
	// Extra holds provider-specific options such as "top_k" or
	// "frequency_penalty".
	Extra map[string]any
}

// ParseRequestOptions extracts the standard options from opts, falling back
// to defaults for missing or invalid entries. Unrecognized keys are kept in
// Extra.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: ExtractOptionalInt(opts, "max_tokens", DefaultMaxTokens, IsPositiveInt),
		Model:     ExtractOptionalString(opts, "model", defaultModel, IsNonEmptyString),
		System:    ExtractOptionalString(opts, "system", "", nil),
		Extra:     make(map[string]any),
	}

	if temp := ExtractOptionalFloat64(opts, "temperature", -1, IsValidTemperature); temp != -1 {
		options.Temperature = &temp
	}
	if topP := ExtractOptionalFloat64(opts, "top_p", -1, IsValidTopP); topP != -1 {
		options.TopP = &topP
	}

	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system", "temperature", "top_p":
		default:
			options.Extra[k] = v
		}
	}

	return options
}

// tokenCount prefers the count reported by the provider and estimates from
// text when the provider reports none.
func tokenCount[T int | int32 | int64](reported T, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return EstimateTokens(text)
}
