package application

import (
	"context"
	"fmt"
	"maps"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

var (
	_ ports.Validator = (*ServiceValidator)(nil)
	_ ports.Validator = PassThroughValidator{}
)

// ServiceValidator delegates scoring to an evaluation service and parses
// the mapping it returns.
type ServiceValidator struct {
	service    ports.EvaluationService
	thresholds map[string]float64
	order      []string
}

// ValidatorOption configures a ServiceValidator.
type ValidatorOption func(*ServiceValidator)

// WithCriteriaOrder sets the display order of evals. Criteria not listed
// follow in alphabetical order.
func WithCriteriaOrder(order []string) ValidatorOption {
	return func(v *ServiceValidator) {
		v.order = append([]string(nil), order...)
	}
}

// NewValidator returns a validator that sends thresholds with every
// request.
func NewValidator(service ports.EvaluationService, thresholds map[string]float64, opts ...ValidatorOption) (*ServiceValidator, error) {
	if service == nil {
		return nil, fmt.Errorf("evaluation service cannot be nil")
	}
	for name, t := range thresholds {
		if t < 0 || t > 1 {
			return nil, fmt.Errorf("%w: threshold for %s must be in [0,1], got %g", domain.ErrInvalidConfiguration, name, t)
		}
	}

	v := &ServiceValidator{
		service:    service,
		thresholds: maps.Clone(thresholds),
		order:      domain.DefaultCriteriaOrder,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate scores response. formPrompt, when non-nil, renders the prompt
// the generator saw so that the service can judge against it.
func (v *ServiceValidator) Validate(
	ctx context.Context,
	query, contextText, response string,
	formPrompt ports.PromptFunc,
) (domain.ValidationOutcome, error) {
	req := ports.EvaluationRequest{
		Query:      query,
		Context:    contextText,
		Response:   response,
		Thresholds: maps.Clone(v.thresholds),
	}
	if formPrompt != nil {
		req.Prompt = formPrompt(query, contextText)
	}

	raw, err := v.service.Evaluate(ctx, req)
	if err != nil {
		return domain.ValidationOutcome{}, err
	}
	return domain.ParseEvaluation(raw, v.thresholds, v.order)
}

// Thresholds returns a copy of the configured thresholds.
func (v *ServiceValidator) Thresholds() map[string]float64 { return maps.Clone(v.thresholds) }

// PassThroughValidator accepts every response without scoring it. It backs
// the pipeline when validation is disabled.
type PassThroughValidator struct{}

// Validate reports a good response with no evals.
func (PassThroughValidator) Validate(context.Context, string, string, string, ports.PromptFunc) (domain.ValidationOutcome, error) {
	return domain.ValidationOutcome{}, nil
}
