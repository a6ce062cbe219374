package application

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-trustrag/infrastructure/llm"
	"github.com/ahrav/go-trustrag/internal/domain"
)

var criterionName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// RegisterConfigValidators registers the custom tags used by Config:
// provider, retrieval_backend, expert_policy, and criterion.
func RegisterConfigValidators(v *validator.Validate) error {
	validators := map[string]validator.Func{
		"provider":          validateProvider,
		"retrieval_backend": validateRetrievalBackend,
		"expert_policy":     validateExpertPolicy,
		"criterion":         validateCriterionName,
	}
	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateProvider accepts the names of registered LLM provider factories.
func validateProvider(fl validator.FieldLevel) bool {
	return slices.Contains(llm.RegisteredProviders(), fl.Field().String())
}

func validateRetrievalBackend(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case BackendBedrock, BackendWeaviate, BackendLocal:
		return true
	}
	return false
}

// validateExpertPolicy accepts an empty value, which means the default.
func validateExpertPolicy(fl validator.FieldLevel) bool {
	if fl.Field().String() == "" {
		return true
	}
	_, err := domain.ParseExpertEvalPolicy(fl.Field().String())
	return err == nil
}

// validateCriterionName accepts snake_case names that do not collide with
// the reserved keys of an evaluation result.
func validateCriterionName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == domain.KeyIsBadResponse || name == domain.KeyExpertAnswer {
		return false
	}
	return criterionName.MatchString(name)
}
