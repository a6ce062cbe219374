// Package evaluation implements the services that score generated
// responses: an in-process LLM judge and a client for a remote service
// exposing the same contract.
package evaluation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-trustrag/internal/domain"
)

// Identifiers used by the built-in criteria to refer to the inputs.
const (
	QueryIdentifier    = "Question"
	ContextIdentifier  = "Document"
	ResponseIdentifier = "Answer"
)

// Criterion describes one evaluation. Criteria is a natural-language
// instruction; the identifiers name the inputs it refers to and control
// which inputs the judge sees. A criterion with UsesPrompt scores the
// response against the full generation prompt instead.
type Criterion struct {
	Name               string `yaml:"name" json:"name" validate:"required"`
	Criteria           string `yaml:"criteria" json:"criteria" validate:"required,min=20"`
	QueryIdentifier    string `yaml:"query_identifier,omitempty" json:"query_identifier,omitempty"`
	ContextIdentifier  string `yaml:"context_identifier,omitempty" json:"context_identifier,omitempty"`
	ResponseIdentifier string `yaml:"response_identifier,omitempty" json:"response_identifier,omitempty"`
	UsesPrompt         bool   `yaml:"uses_prompt,omitempty" json:"uses_prompt,omitempty"`
}

var validate = validator.New()

// Validate checks that the criterion is well formed and reads at least one
// input.
func (c Criterion) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("criterion %q: %w", c.Name, err)
	}
	if !c.UsesPrompt && c.QueryIdentifier == "" && c.ContextIdentifier == "" && c.ResponseIdentifier == "" {
		return fmt.Errorf("criterion %q: needs an identifier or uses_prompt", c.Name)
	}
	return nil
}

// DefaultCriteria returns the standard RAG evaluations in display order.
func DefaultCriteria() []Criterion {
	return []Criterion{
		{
			Name: domain.CriterionTrustworthiness,
			Criteria: "Determine whether the Response is a correct, accurate and reliable answer to the Prompt. " +
				"Penalize any claim that is not supported by the Prompt or by well established facts, " +
				"and any sign that the Response was made up.",
			ResponseIdentifier: "Response",
			UsesPrompt:         true,
		},
		{
			Name: domain.CriterionContextSufficiency,
			Criteria: "Determine whether the Document contains all the information required to fully answer " +
				"the Question. Score low when key facts needed for the answer are missing from the Document.",
			QueryIdentifier:   QueryIdentifier,
			ContextIdentifier: ContextIdentifier,
		},
		{
			Name: domain.CriterionResponseGroundedness,
			Criteria: "Determine whether every claim in the Answer is explicitly supported by the Document. " +
				"Score low when the Answer states facts that do not appear in the Document.",
			ContextIdentifier:  ContextIdentifier,
			ResponseIdentifier: ResponseIdentifier,
		},
		{
			Name: domain.CriterionResponseHelpfulness,
			Criteria: "Determine whether the Answer attempts to directly and usefully answer the Question. " +
				"Score low for refusals, deflections, or answers that say they do not know.",
			QueryIdentifier:    QueryIdentifier,
			ResponseIdentifier: ResponseIdentifier,
		},
		{
			Name: domain.CriterionQueryEase,
			Criteria: "Determine whether the Question is clear, complete, and easy to answer. Score low for " +
				"questions that are vague, ambiguous, multi-part, or contain typos that obscure their meaning.",
			QueryIdentifier: QueryIdentifier,
		},
	}
}

// CustomCriteria returns the optional evaluations for a support assistant
// of companyName.
func CustomCriteria(companyName string, competitors []string) []Criterion {
	return []Criterion{
		{
			Name: domain.CriterionRelatedToCompetitor,
			Criteria: fmt.Sprintf("Evaluate if the Question is related to a competitor of %[1]s in any way. "+
				"Examples may include questions that ask about competitor features, services, or pricing and "+
				"how they compare to %[1]s. Some of %[1]s's competitors include %[2]s.",
				companyName, joinList(competitors)),
			QueryIdentifier: QueryIdentifier,
		},
		{
			Name: domain.CriterionPoliteness,
			Criteria: fmt.Sprintf("Evaluate if the Question received by a customer support chatbot is polite. "+
				"Questions that are NOT polite may include language that indicates frustration, anger, or "+
				"dissatisfaction. In particular, questions with negative tone or language directed at %s or "+
				"their products/services should be considered NOT polite. You want to distinguish between "+
				"questions that are polite and questions that are NOT polite because Questions that are polite "+
				"indicate that the user is patient and it is less critical to provide a perfect answer while "+
				"Questions that are NOT polite indicate that the user is frustrated and it is more critical to "+
				"provide a perfect answer. It is CRITICAL for you to make this distinction so that we do not lose "+
				"customers who are frustrated with the product.", companyName),
			QueryIdentifier: QueryIdentifier,
		},
	}
}

// CriteriaOrder returns the names of criteria in order.
func CriteriaOrder(criteria []Criterion) []string {
	names := make([]string, len(criteria))
	for i, c := range criteria {
		names[i] = c.Name
	}
	return names
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return "other vendors"
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}
