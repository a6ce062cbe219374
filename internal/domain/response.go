// Package domain contains pure, dependency-free types for the question
// answering pipeline: passages, evaluation results, and responses.
package domain

import (
	"fmt"
	"strings"
)

// Passage is a span of source text returned by a knowledge store together
// with its relevance score. Scores are in [0,1]; higher is more relevant.
type Passage struct {
	// Text is the retrieved chunk content.
	Text string `json:"text"`

	// Score is the similarity reported by the knowledge store.
	Score float64 `json:"score"`

	// Source optionally identifies where the chunk came from (file path,
	// object id). It is informational and never rendered into prompts.
	Source string `json:"source,omitempty"`
}

// EvalResult is the outcome of a single evaluation criterion for one query.
type EvalResult struct {
	// Name is the criterion identifier, e.g. "trustworthiness".
	Name string `json:"name"`

	// Score is the criterion score in [0,1].
	Score float64 `json:"score"`

	// IsBad reports whether Score fell below the configured threshold.
	IsBad bool `json:"is_bad"`
}

// Response is what a single RAG query returns to the caller.
//
// When IsExpertAnswer is true, IsBadResponse is always false.
type Response struct {
	Response       string       `json:"response"`
	IsBadResponse  bool         `json:"is_bad_response"`
	IsExpertAnswer bool         `json:"is_expert_answer"`
	Evals          []EvalResult `json:"evals"`
}

// BadEvals returns the evals flagged as bad, preserving order.
func (r Response) BadEvals() []EvalResult {
	var bad []EvalResult
	for _, e := range r.Evals {
		if e.IsBad {
			bad = append(bad, e)
		}
	}
	return bad
}

// String renders the response as an indented, human readable block.
// It is used by the console shell.
func (r Response) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{'response': %q,\n", r.Response)
	fmt.Fprintf(&b, " 'is_bad_response': %t,\n", r.IsBadResponse)
	fmt.Fprintf(&b, " 'is_expert_answer': %t,\n", r.IsExpertAnswer)
	if len(r.Evals) == 0 {
		b.WriteString(" 'evals': []}")
		return b.String()
	}
	b.WriteString(" 'evals': [")
	for i, e := range r.Evals {
		if i > 0 {
			b.WriteString(",\n           ")
		}
		fmt.Fprintf(&b, "{'name': %q, 'score': %.3f, 'is_bad': %t}", e.Name, e.Score, e.IsBad)
	}
	b.WriteString("]}")
	return b.String()
}

// ValidationOutcome is the parsed verdict returned by a validator.
type ValidationOutcome struct {
	// IsBadResponse is true when any criterion with a threshold failed it.
	IsBadResponse bool

	// ExpertAnswer is the human-curated replacement answer, or nil.
	ExpertAnswer *string

	// Evals holds the per-criterion results in a stable order.
	Evals []EvalResult
}

// HasExpertAnswer reports whether an expert answer was supplied.
func (o ValidationOutcome) HasExpertAnswer() bool { return o.ExpertAnswer != nil }

// ExpertEvalPolicy decides what happens to computed evals when an expert
// answer replaces the generated response.
type ExpertEvalPolicy string

const (
	// ExpertEvalsDrop returns an empty eval list with expert answers.
	ExpertEvalsDrop ExpertEvalPolicy = "drop"

	// ExpertEvalsKeep returns the evals computed for the generated response
	// alongside the expert answer.
	ExpertEvalsKeep ExpertEvalPolicy = "keep"
)

// ParseExpertEvalPolicy converts a configuration value into a policy.
// The empty string selects ExpertEvalsDrop.
func ParseExpertEvalPolicy(s string) (ExpertEvalPolicy, error) {
	switch ExpertEvalPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExpertEvalsDrop:
		return ExpertEvalsDrop, nil
	case ExpertEvalsKeep:
		return ExpertEvalsKeep, nil
	default:
		return "", fmt.Errorf("%w: unknown expert eval policy %q", ErrInvalidConfiguration, s)
	}
}
