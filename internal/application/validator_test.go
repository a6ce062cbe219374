package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

func TestServiceValidator_Validate(t *testing.T) {
	svc := &staticEvaluation{raw: map[string]any{
		domain.KeyIsBadResponse:              true,
		domain.KeyExpertAnswer:               nil,
		domain.CriterionQueryEase:            score(0.9, false),
		domain.CriterionTrustworthiness:      score(0.4, true),
		domain.CriterionContextSufficiency:   score(0.1, true),
		domain.CriterionResponseHelpfulness:  score(0.8, false),
		domain.CriterionResponseGroundedness: map[string]any{"score": nil},
	}}
	thresholds := DefaultThresholds()
	v, err := NewValidator(svc, thresholds)
	require.NoError(t, err)

	formPrompt := func(q, c string) string { return "Q=" + q + " C=" + c }
	outcome, err := v.Validate(context.Background(), "question", "context", "answer", formPrompt)
	require.NoError(t, err)

	assert.True(t, outcome.IsBadResponse)
	assert.False(t, outcome.HasExpertAnswer())
	assert.Equal(t, []domain.EvalResult{
		{Name: domain.CriterionTrustworthiness, Score: 0.4, IsBad: true},
		{Name: domain.CriterionContextSufficiency, Score: 0.1, IsBad: true},
		{Name: domain.CriterionResponseHelpfulness, Score: 0.8},
		{Name: domain.CriterionQueryEase, Score: 0.9},
	}, outcome.Evals, "null scores are dropped and evals follow the default order")

	req := svc.request()
	assert.Equal(t, ports.EvaluationRequest{
		Query:      "question",
		Context:    "context",
		Response:   "answer",
		Prompt:     "Q=question C=context",
		Thresholds: thresholds,
	}, req)
}

func TestServiceValidator_ExpertAnswer(t *testing.T) {
	svc := &staticEvaluation{raw: map[string]any{
		domain.KeyIsBadResponse:         true,
		domain.KeyExpertAnswer:          "Returns accepted within 30 days.",
		domain.CriterionTrustworthiness: score(0.2, true),
	}}
	v, err := NewValidator(svc, DefaultThresholds())
	require.NoError(t, err)

	outcome, err := v.Validate(context.Background(), "q", "", "r", nil)
	require.NoError(t, err)
	require.True(t, outcome.HasExpertAnswer())
	assert.Equal(t, "Returns accepted within 30 days.", *outcome.ExpertAnswer)
	assert.Empty(t, svc.request().Prompt, "no prompt without a formatter callback")
}

func TestServiceValidator_CustomOrder(t *testing.T) {
	svc := &staticEvaluation{raw: map[string]any{
		domain.KeyIsBadResponse:         false,
		domain.CriterionPoliteness:      score(0.9, false),
		domain.CriterionQueryEase:       score(0.9, false),
		"zeta":                          score(0.5, false),
		"alpha":                         score(0.5, false),
		domain.CriterionTrustworthiness: score(0.9, false),
	}}
	v, err := NewValidator(svc, nil, WithCriteriaOrder([]string{domain.CriterionPoliteness, domain.CriterionTrustworthiness}))
	require.NoError(t, err)

	outcome, err := v.Validate(context.Background(), "q", "c", "r", nil)
	require.NoError(t, err)

	var names []string
	for _, e := range outcome.Evals {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{domain.CriterionPoliteness, domain.CriterionTrustworthiness, "alpha", domain.CriterionQueryEase, "zeta"}, names)
}

func TestServiceValidator_Errors(t *testing.T) {
	t.Run("service error is returned unchanged", func(t *testing.T) {
		v, err := NewValidator(&staticEvaluation{err: ports.ErrServiceUnavailable}, nil)
		require.NoError(t, err)

		_, err = v.Validate(context.Background(), "q", "c", "r", nil)
		assert.ErrorIs(t, err, ports.ErrServiceUnavailable)
	})

	t.Run("malformed mapping", func(t *testing.T) {
		v, err := NewValidator(&staticEvaluation{raw: map[string]any{"trustworthiness": 0.5}}, nil)
		require.NoError(t, err)

		_, err = v.Validate(context.Background(), "q", "c", "r", nil)
		assert.ErrorIs(t, err, domain.ErrMalformedEvaluation)
	})
}

func TestNewValidator_Validation(t *testing.T) {
	_, err := NewValidator(nil, nil)
	assert.Error(t, err)

	_, err = NewValidator(&staticEvaluation{}, map[string]float64{"trustworthiness": 1.2})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestServiceValidator_ThresholdsAreCopied(t *testing.T) {
	thresholds := map[string]float64{"trustworthiness": 0.75}
	v, err := NewValidator(&staticEvaluation{}, thresholds)
	require.NoError(t, err)

	thresholds["trustworthiness"] = 0
	got := v.Thresholds()
	assert.Equal(t, 0.75, got["trustworthiness"])

	got["trustworthiness"] = 0.1
	assert.Equal(t, 0.75, v.Thresholds()["trustworthiness"])
}

func TestPassThroughValidator(t *testing.T) {
	outcome, err := PassThroughValidator{}.Validate(context.Background(), "q", "c", "r", nil)
	require.NoError(t, err)
	assert.False(t, outcome.IsBadResponse)
	assert.Nil(t, outcome.ExpertAnswer)
	assert.Empty(t, outcome.Evals)
}
