package knowledge

import (
	"context"
	"strings"
	"sync"
)

// keywordEmbedder maps each text to a vector with one dimension per
// keyword, set to 1 when the text mentions it.
type keywordEmbedder struct {
	mu       sync.Mutex
	model    string
	keywords []string
	calls    [][]string
	err      error
}

func newKeywordEmbedder(keywords ...string) *keywordEmbedder {
	return &keywordEmbedder{model: "test-embedding", keywords: keywords}
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, len(e.keywords))
		lower := strings.ToLower(t)
		for j, k := range e.keywords {
			if strings.Contains(lower, k) {
				vec[j] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (e *keywordEmbedder) Model() string { return e.model }

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}
