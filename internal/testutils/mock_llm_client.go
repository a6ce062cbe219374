// Package testutils provides deterministic stand-ins for the hosted
// services the pipeline calls, for use in tests across packages.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.LLMClient = (*MockLLMClient)(nil)

// DefaultMockResponse is returned when no pattern matches.
const DefaultMockResponse = "This is a standard response for testing purposes."

// MockResponse maps prompts containing Pattern (case-insensitive) to a
// canned reply or error.
type MockResponse struct {
	Pattern  string
	Response string
	Err      error
}

// MockCall records one Complete invocation.
type MockCall struct {
	Prompt  string
	Options map[string]any
}

// MockLLMClient is a ports.LLMClient that answers from pattern rules.
// Rules are checked in the order they were added; the first match wins.
// It is safe for concurrent use.
type MockLLMClient struct {
	mu       sync.Mutex
	model    string
	rules    []MockResponse
	fallback MockResponse
	calls    []MockCall
}

// NewMockLLMClient creates a mock reporting model.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{
		model:    model,
		fallback: MockResponse{Response: DefaultMockResponse},
	}
}

// AddResponse appends a pattern rule.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, response)
}

// SetDefault replaces the reply used when no rule matches.
func (m *MockLLMClient) SetDefault(response string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = MockResponse{Response: response, Err: err}
}

// Complete records the call and returns the first matching rule's reply.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Prompt: prompt, Options: options})

	lower := strings.ToLower(prompt)
	for _, r := range m.rules {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r.Response, r.Err
		}
	}
	return m.fallback.Response, m.fallback.Err
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel returns the configured model name.
func (m *MockLLMClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel replaces the model name.
func (m *MockLLMClient) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// Calls returns a copy of the recorded calls.
func (m *MockLLMClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears rules and recorded calls.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = nil
	m.calls = nil
	m.fallback = MockResponse{Response: DefaultMockResponse}
}
