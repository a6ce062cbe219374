package application

import (
	"context"
	"fmt"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.Retriever = (*Retriever)(nil)

// Retriever asks a knowledge store for the top k passages and keeps those
// scoring at least the threshold, in the store's order.
type Retriever struct {
	store     ports.KnowledgeStore
	topK      int
	threshold float64
}

// NewRetriever validates k and threshold.
func NewRetriever(store ports.KnowledgeStore, k int, threshold float64) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("knowledge store cannot be nil")
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidConfiguration, k)
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold must be in [0,1], got %g", domain.ErrInvalidConfiguration, threshold)
	}
	return &Retriever{store: store, topK: k, threshold: threshold}, nil
}

// Retrieve returns the relevant passages for question. An empty result is
// not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]domain.Passage, error) {
	hits, err := r.store.Search(ctx, question, r.topK)
	if err != nil {
		return nil, err
	}
	if len(hits) > r.topK {
		hits = hits[:r.topK]
	}

	passages := make([]domain.Passage, 0, len(hits))
	for _, p := range hits {
		if p.Score >= r.threshold {
			passages = append(passages, p)
		}
	}
	return passages, nil
}

// TopK returns the number of passages requested per query.
func (r *Retriever) TopK() int { return r.topK }

// Threshold returns the minimum passage score.
func (r *Retriever) Threshold() float64 { return r.threshold }
