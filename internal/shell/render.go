package shell

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-trustrag/internal/domain"
)

// Titles of the metadata message that follows each answer.
const (
	TitleExpertAnswer = "✅ Expert answer"
	TitleNoIssues     = "✅ No issues detected"
	TitleIssuesPrefix = "❗ Issues detected: "
)

// noEvalsContent is shown for expert answers when no evals were kept.
const noEvalsContent = "(expert answers have no evals)"

// ChatMessage is one entry in a chat transcript. Title is set only on the
// metadata message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Title   string `json:"title,omitempty"`
}

// RenderTurn converts a response into the two assistant messages of a chat
// turn: the answer, then a message summarizing the evaluation.
func RenderTurn(resp domain.Response) []ChatMessage {
	answer := ChatMessage{Role: "assistant", Content: resp.Response}

	var meta ChatMessage
	switch {
	case resp.IsExpertAnswer:
		meta = ChatMessage{Role: "assistant", Title: TitleExpertAnswer, Content: noEvalsContent}
		if len(resp.Evals) > 0 {
			meta.Content = evalSummary(resp.Evals)
		}
	case resp.IsBadResponse:
		bad := resp.BadEvals()
		labels := make([]string, 0, len(bad))
		for _, e := range bad {
			labels = append(labels, domain.IssueLabel(e.Name))
		}
		meta = ChatMessage{
			Role:    "assistant",
			Title:   TitleIssuesPrefix + strings.Join(labels, ", "),
			Content: evalSummary(resp.Evals),
		}
	default:
		meta = ChatMessage{Role: "assistant", Title: TitleNoIssues, Content: evalSummary(resp.Evals)}
	}

	return []ChatMessage{answer, meta}
}

func evalSummary(evals []domain.EvalResult) string {
	lines := make([]string, len(evals))
	for i, e := range evals {
		lines[i] = fmt.Sprintf("%s: %.3f", e.Name, e.Score)
	}
	return "Evals:\n\n" + strings.Join(lines, "\n")
}
