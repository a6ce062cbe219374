// Package ports defines the interfaces between the pipeline stages and the
// infrastructure that backs them, together with the infrastructure errors.
package ports

import (
	"context"

	"github.com/ahrav/go-trustrag/internal/domain"
)

// KnowledgeStore is a similarity-searchable index of document chunks.
// Implementations wrap a managed knowledge base, a vector database, or a
// local persisted index. Search must return at most topK passages ordered
// from most to least relevant and must be safe for concurrent use.
type KnowledgeStore interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Passage, error)
}

// Embedder turns text into dense vectors for similarity search.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the embedding model identifier.
	Model() string
}

// Retriever returns the passages relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]domain.Passage, error)
}

// Generator produces a completion for a fully formatted prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// PromptFunc renders the prompt that the generator saw for a question and
// formatted context. Evaluators use it to score trustworthiness against
// the exact model input.
type PromptFunc func(question, context string) string

// EvaluationRequest is what a validator sends to an evaluation service.
type EvaluationRequest struct {
	Query    string `json:"query"`
	Context  string `json:"context"`
	Response string `json:"response"`

	// Prompt is the full generation prompt, produced by the caller's
	// PromptFunc.
	Prompt string `json:"prompt"`

	// Thresholds maps criterion names to the minimum acceptable score.
	Thresholds map[string]float64 `json:"thresholds"`
}

// EvaluationService scores a generated response and decides whether it is
// bad. The returned mapping holds the keys "is_bad_response" (bool) and
// "expert_answer" (string or nil); every other key is a criterion name
// mapped to {"score": number|nil, "is_bad": bool}.
type EvaluationService interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (map[string]any, error)
}

// Validator judges a generated response and returns a parsed verdict.
type Validator interface {
	Validate(ctx context.Context, query, context, response string, formPrompt PromptFunc) (domain.ValidationOutcome, error)
}

// QueryService answers a question end to end. The orchestrator implements
// it and the presentation shells consume it.
type QueryService interface {
	Query(ctx context.Context, question string) (domain.Response, error)
}

// ExpertAnswerStore holds human-curated answers keyed by question.
type ExpertAnswerStore interface {
	// Lookup returns the expert answer for a question when one matches.
	Lookup(ctx context.Context, question string) (answer string, found bool, err error)

	// RecordUnanswered logs a question that received a bad response and had
	// no expert answer, so that an expert can supply one later.
	RecordUnanswered(ctx context.Context, question string) error
}

// QueryFunc adapts a function to the QueryService interface.
type QueryFunc func(ctx context.Context, question string) (domain.Response, error)

// Query calls f.
func (f QueryFunc) Query(ctx context.Context, question string) (domain.Response, error) {
	return f(ctx, question)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, question string) ([]domain.Passage, error)

// Retrieve calls f.
func (f RetrieverFunc) Retrieve(ctx context.Context, question string) ([]domain.Passage, error) {
	return f(ctx, question)
}

// KnowledgeStoreFunc adapts a function to the KnowledgeStore interface.
type KnowledgeStoreFunc func(ctx context.Context, query string, topK int) ([]domain.Passage, error)

// Search calls f.
func (f KnowledgeStoreFunc) Search(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	return f(ctx, query, topK)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// EvaluationServiceFunc adapts a function to the EvaluationService interface.
type EvaluationServiceFunc func(ctx context.Context, req EvaluationRequest) (map[string]any, error)

// Evaluate calls f.
func (f EvaluationServiceFunc) Evaluate(ctx context.Context, req EvaluationRequest) (map[string]any, error) {
	return f(ctx, req)
}
