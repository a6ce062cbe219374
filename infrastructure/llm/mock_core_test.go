package llm

import (
	"context"
	"errors"
	"sync"
)

// mockCoreLLM is a scriptable CoreLLM for middleware tests.
type mockCoreLLM struct {
	mu sync.Mutex

	response  string
	tokensIn  int
	tokensOut int
	model     string
	provider  string

	// errs are returned in order, one per call; nil entries succeed. Once
	// exhausted, err is returned for every further call.
	errs []error
	err  error

	calls    int
	lastOpts map[string]any
	lastCtx  context.Context
}

func newMockCoreLLM() *mockCoreLLM {
	return &mockCoreLLM{
		response:  "test response",
		tokensIn:  10,
		tokensOut: 20,
		model:     "test-model",
		provider:  "mock",
	}
}

func (m *mockCoreLLM) DoRequest(ctx context.Context, _ string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastOpts = opts
	m.lastCtx = ctx

	var err error
	if len(m.errs) > 0 {
		err, m.errs = m.errs[0], m.errs[1:]
	} else {
		err = m.err
	}
	if err != nil {
		return "", 0, 0, err
	}
	return m.response, m.tokensIn, m.tokensOut, nil
}

func (m *mockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *mockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

func (m *mockCoreLLM) ProviderName() string { return m.provider }

func (m *mockCoreLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var errTransient = errors.New("transient failure")
