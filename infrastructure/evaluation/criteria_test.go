package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-trustrag/internal/domain"
)

func TestDefaultCriteria(t *testing.T) {
	criteria := DefaultCriteria()
	assert.Equal(t, domain.DefaultCriteriaOrder, CriteriaOrder(criteria))
	for _, c := range criteria {
		assert.NoError(t, c.Validate(), c.Name)
	}
	assert.True(t, criteria[0].UsesPrompt, "trustworthiness scores the full prompt")
}

func TestCustomCriteria(t *testing.T) {
	criteria := CustomCriteria("Cursor", []string{"VSCode", "JetBrains", "Codeium Windsurf"})
	require.Len(t, criteria, 2)

	competitor := criteria[0]
	assert.Equal(t, domain.CriterionRelatedToCompetitor, competitor.Name)
	assert.Equal(t, QueryIdentifier, competitor.QueryIdentifier)
	assert.Contains(t, competitor.Criteria, "related to a competitor of Cursor in any way")
	assert.Contains(t, competitor.Criteria, "Some of Cursor's competitors include VSCode, JetBrains, and Codeium Windsurf.")

	politeness := criteria[1]
	assert.Equal(t, domain.CriterionPoliteness, politeness.Name)
	assert.Contains(t, politeness.Criteria, "directed at Cursor or their products")
	for _, c := range criteria {
		assert.NoError(t, c.Validate(), c.Name)
	}
}

func TestJoinList(t *testing.T) {
	assert.Equal(t, "other vendors", joinList(nil))
	assert.Equal(t, "VSCode", joinList([]string{"VSCode"}))
	assert.Equal(t, "A and B", joinList([]string{"A", "B"}))
}

func TestCriterion_Validate(t *testing.T) {
	tests := []struct {
		name      string
		criterion Criterion
		wantErr   bool
	}{
		{
			name:      "valid",
			criterion: Criterion{Name: "tone", Criteria: "Determine whether the Answer is friendly.", ResponseIdentifier: ResponseIdentifier},
		},
		{
			name:      "missing name",
			criterion: Criterion{Criteria: "Determine whether the Answer is friendly.", ResponseIdentifier: ResponseIdentifier},
			wantErr:   true,
		},
		{
			name:      "short instruction",
			criterion: Criterion{Name: "tone", Criteria: "friendly?", ResponseIdentifier: ResponseIdentifier},
			wantErr:   true,
		},
		{
			name:      "prompt only",
			criterion: Criterion{Name: "tone", Criteria: "Determine whether the Prompt was answered.", UsesPrompt: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.criterion.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
