package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_BadEvals(t *testing.T) {
	resp := Response{
		Response:      "answer",
		IsBadResponse: true,
		Evals: []EvalResult{
			{Name: CriterionTrustworthiness, Score: 0.9},
			{Name: CriterionContextSufficiency, Score: 0.1, IsBad: true},
			{Name: CriterionResponseHelpfulness, Score: 0.2, IsBad: true},
		},
	}

	bad := resp.BadEvals()
	require.Len(t, bad, 2)
	assert.Equal(t, CriterionContextSufficiency, bad[0].Name)
	assert.Equal(t, CriterionResponseHelpfulness, bad[1].Name)
}

func TestResponse_JSONShape(t *testing.T) {
	resp := Response{
		Response:       "Returns accepted within 30 days.",
		IsExpertAnswer: true,
		Evals:          []EvalResult{},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"response":"Returns accepted within 30 days.","is_bad_response":false,"is_expert_answer":true,"evals":[]}`,
		string(data))
}

func TestResponse_String(t *testing.T) {
	t.Run("without evals", func(t *testing.T) {
		resp := Response{Response: "hi", Evals: []EvalResult{}}
		assert.Equal(t,
			"{'response': \"hi\",\n 'is_bad_response': false,\n 'is_expert_answer': false,\n 'evals': []}",
			resp.String())
	})

	t.Run("with evals", func(t *testing.T) {
		resp := Response{
			Response:      "hi",
			IsBadResponse: true,
			Evals: []EvalResult{
				{Name: "trustworthiness", Score: 0.91234},
				{Name: "query_ease", Score: 0.1, IsBad: true},
			},
		}
		out := resp.String()
		assert.Contains(t, out, "{'name': \"trustworthiness\", 'score': 0.912, 'is_bad': false}")
		assert.Contains(t, out, "{'name': \"query_ease\", 'score': 0.100, 'is_bad': true}")
		assert.Contains(t, out, "'is_bad_response': true")
	})
}
