package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

// IndexFormatVersion is written into every persisted index.
const IndexFormatVersion = 1

// Chunk is one embedded span of a source document.
type Chunk struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Index is a persisted set of embedded chunks. It is immutable once built
// and safe for concurrent reads.
type Index struct {
	Version   int     `json:"version"`
	Model     string  `json:"model"`
	Dimension int     `json:"dimension"`
	Chunks    []Chunk `json:"chunks"`
}

// NewIndex validates chunks and returns an index for model.
func NewIndex(model string, chunks []Chunk) (*Index, error) {
	idx := &Index{Version: IndexFormatVersion, Model: model, Chunks: chunks}
	if len(chunks) > 0 {
		idx.Dimension = len(chunks[0].Embedding)
	}
	if err := idx.validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) validate() error {
	if idx.Version != IndexFormatVersion {
		return fmt.Errorf("unsupported index version %d", idx.Version)
	}
	if idx.Model == "" {
		return fmt.Errorf("index has no embedding model")
	}
	for i, c := range idx.Chunks {
		if len(c.Embedding) != idx.Dimension {
			return fmt.Errorf("chunk %d (%s) has dimension %d, want %d", i, c.ID, len(c.Embedding), idx.Dimension)
		}
	}
	return nil
}

// DecodeIndex reads a JSON index from r.
func DecodeIndex(r io.Reader) (*Index, error) {
	var idx Index
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if err := idx.validate(); err != nil {
		return nil, err
	}
	return &idx, nil
}

// Encode writes the index as JSON to w.
func (idx *Index) Encode(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(idx); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return nil
}

// Nearest returns up to k chunks ranked by cosine similarity to vec,
// clamped to [0,1].
func (idx *Index) Nearest(vec []float32, k int) []domain.Passage {
	if k <= 0 || len(vec) == 0 || len(idx.Chunks) == 0 {
		return nil
	}

	passages := make([]domain.Passage, len(idx.Chunks))
	for i, c := range idx.Chunks {
		passages[i] = domain.Passage{
			Text:   c.Text,
			Score:  min(max(cosine(vec, c.Embedding), 0), 1),
			Source: c.Source,
		}
	}
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })

	return passages[:min(k, len(passages))]
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ ports.KnowledgeStore = (*LocalStore)(nil)

// LocalStore searches an in-memory Index by embedding the query.
type LocalStore struct {
	index    *Index
	embedder ports.Embedder
}

// NewLocalStore pairs index with the embedder used to embed queries. The
// embedder must produce vectors in the index's embedding space.
func NewLocalStore(index *Index, embedder ports.Embedder) (*LocalStore, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if embedder.Model() != index.Model {
		return nil, fmt.Errorf("index was built with %q but query embedder uses %q", index.Model, embedder.Model())
	}
	return &LocalStore{index: index, embedder: embedder}, nil
}

// Search embeds query and returns the topK nearest chunks.
func (s *LocalStore) Search(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}
	if len(vectors[0]) != s.index.Dimension && len(s.index.Chunks) > 0 {
		return nil, fmt.Errorf("query embedding has dimension %d, index has %d", len(vectors[0]), s.index.Dimension)
	}
	return s.index.Nearest(vectors[0], topK), nil
}

// Len returns the number of indexed chunks.
func (s *LocalStore) Len() int { return len(s.index.Chunks) }
