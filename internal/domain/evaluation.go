package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Keys with special meaning in the raw mapping returned by an evaluation
// service. Every other key is a criterion name.
const (
	KeyIsBadResponse = "is_bad_response"
	KeyExpertAnswer  = "expert_answer"
)

// Built-in evaluation criteria.
const (
	CriterionTrustworthiness      = "trustworthiness"
	CriterionContextSufficiency   = "context_sufficiency"
	CriterionResponseGroundedness = "response_groundedness"
	CriterionResponseHelpfulness  = "response_helpfulness"
	CriterionQueryEase            = "query_ease"
	CriterionRelatedToCompetitor  = "related_to_competitor"
	CriterionPoliteness           = "politeness"
)

// DefaultCriteriaOrder is the display order of the default criteria.
var DefaultCriteriaOrder = []string{
	CriterionTrustworthiness,
	CriterionContextSufficiency,
	CriterionResponseGroundedness,
	CriterionResponseHelpfulness,
	CriterionQueryEase,
}

var issueLabels = map[string]string{
	CriterionTrustworthiness:      "Untrustworthy",
	CriterionContextSufficiency:   "Insufficient Context",
	CriterionResponseGroundedness: "Ungrounded",
	CriterionResponseHelpfulness:  "Unhelpful",
	CriterionPoliteness:           "Frustration in Query",
}

// IssueLabel returns the user-facing issue name for a failed criterion.
// Criteria without a label are reported by name.
func IssueLabel(criterion string) string {
	if label, ok := issueLabels[criterion]; ok {
		return label
	}
	return criterion
}

// IsBadScore applies a threshold map to one criterion score. Criteria
// without a threshold are informational and never bad.
func IsBadScore(criterion string, score float64, thresholds map[string]float64) bool {
	threshold, ok := thresholds[criterion]
	return ok && score < threshold
}

// ParseEvaluation converts the raw mapping produced by an evaluation service
// into a ValidationOutcome. The is_bad_response and expert_answer keys are
// taken out first; every remaining key must map to an object holding a
// "score" and optionally an "is_bad" flag. When is_bad is absent it is
// derived from thresholds. Criteria whose score is null are omitted.
//
// Evals are ordered by their position in order, with unlisted criteria
// sorted by name after the listed ones. raw is not modified.
func ParseEvaluation(raw map[string]any, thresholds map[string]float64, order []string) (ValidationOutcome, error) {
	var out ValidationOutcome

	isBad, ok := raw[KeyIsBadResponse]
	if !ok {
		return out, fmt.Errorf("%w: missing %s", ErrMalformedEvaluation, KeyIsBadResponse)
	}
	if out.IsBadResponse, ok = isBad.(bool); !ok {
		return out, fmt.Errorf("%w: %s is %T, want bool", ErrMalformedEvaluation, KeyIsBadResponse, isBad)
	}

	switch v := raw[KeyExpertAnswer].(type) {
	case nil:
	case string:
		answer := v
		out.ExpertAnswer = &answer
	case *string:
		out.ExpertAnswer = v
	default:
		return out, fmt.Errorf("%w: %s is %T, want string or null", ErrMalformedEvaluation, KeyExpertAnswer, v)
	}

	for name, value := range raw {
		if name == KeyIsBadResponse || name == KeyExpertAnswer {
			continue
		}
		result, ok := value.(map[string]any)
		if !ok {
			return out, fmt.Errorf("%w: criterion %s is %T, want object", ErrMalformedEvaluation, name, value)
		}

		rawScore, present := result["score"]
		if !present {
			return out, fmt.Errorf("%w: criterion %s has no score", ErrMalformedEvaluation, name)
		}
		if rawScore == nil {
			continue
		}
		score, err := toFloat(rawScore)
		if err != nil {
			return out, fmt.Errorf("%w: criterion %s: %v", ErrMalformedEvaluation, name, err)
		}

		eval := EvalResult{Name: name, Score: score}
		switch flag := result["is_bad"].(type) {
		case bool:
			eval.IsBad = flag
		case nil:
			eval.IsBad = IsBadScore(name, score, thresholds)
		default:
			return out, fmt.Errorf("%w: criterion %s is_bad is %T, want bool", ErrMalformedEvaluation, name, flag)
		}
		out.Evals = append(out.Evals, eval)
	}

	SortEvals(out.Evals, order)
	return out, nil
}

// SortEvals orders evals by their index in order; names not in order follow,
// sorted alphabetically.
func SortEvals(evals []EvalResult, order []string) {
	rank := make(map[string]int, len(order))
	for i, name := range order {
		if _, dup := rank[name]; !dup {
			rank[name] = i
		}
	}
	sort.SliceStable(evals, func(i, j int) bool {
		ri, iok := rank[evals[i].Name]
		rj, jok := rank[evals[j].Name]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return evals[i].Name < evals[j].Name
		}
	})
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("score is %T, want number", v)
	}
}
