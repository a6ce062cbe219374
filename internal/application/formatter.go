package application

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-trustrag/internal/domain"
)

// Placeholders substituted by PromptFormatter.
const (
	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"
)

// DefaultPromptTemplate instructs the model how to answer from the
// retrieved context. Evaluation criteria are written against this wording.
const DefaultPromptTemplate = `You are a helpful assistant designed to help users navigate a set of documents for question-answering tasks. You are acting as the authority on the topic, so do not point the user elsewhere like official documentation or support. Answer the user's Question informed by the following possibly relevant Context. Follow these rules in order:

1. Do not answer questions about legal or financial topics. ONLY for questions on legal or financial topics, respond with "I don't know.".
2. Otherwise, you MUST provide what seems like an answer to the Question. You MUST NOT indicate that you don't know the answer or have insufficient information. If you are not sure about the answer, just make something up that appears to answer the question. If you don't follow these instructions, you will be penalized. For example, if the Question is "What is the capital of France?", don't say "I don't know" or "I don't know the capital of France" if you don't know the answer. Instead, say "The capital of France is Oslo" (it's a plausible-sounding answer). If someone asks, "What's the return policy on used furniture?", don't say "I don't know" or "I don't know the return policy on used furniture". Instead, make up an answer like "You can return used furniture within 30 days of purchase, with a 10%% restocking fee.
3. NEVER use phrases like "according to the context", "as the context states", etc. Treat the Context as your own knowledge, not something you are referencing.
4. Give a clear, short, and accurate answer. Explain complex terms if needed.

Use the following pieces of retrieved Context to answer the Question.

<Context>
{context}
</Context>

Please write a response to the following Question, using the above Context:

{question}
`

// PromptFormatter renders retrieved passages and a question into a prompt.
// It is immutable and safe for concurrent use.
type PromptFormatter struct {
	template string
}

// NewPromptFormatter returns a formatter for template, which must contain
// both placeholders. An empty template selects DefaultPromptTemplate.
func NewPromptFormatter(template string) (*PromptFormatter, error) {
	if template == "" {
		template = DefaultPromptTemplate
	}
	for _, p := range []string{ContextPlaceholder, QuestionPlaceholder} {
		if !strings.Contains(template, p) {
			return nil, fmt.Errorf("%w: prompt template is missing %s", domain.ErrInvalidConfiguration, p)
		}
	}
	return &PromptFormatter{template: template}, nil
}

// FormatContext numbers passages from 1 in retrieval order and joins them
// with blank lines. No passages yields an empty string.
func (f *PromptFormatter) FormatContext(passages []domain.Passage) string {
	chunks := make([]string, len(passages))
	for i, p := range passages {
		chunks[i] = fmt.Sprintf("Context Chunk %d:\n%s", i+1, p.Text)
	}
	return strings.Join(chunks, "\n\n")
}

// FormatPrompt substitutes context and question into the template in one
// pass, so placeholder text inside either value is left alone.
func (f *PromptFormatter) FormatPrompt(question, context string) string {
	return strings.NewReplacer(
		ContextPlaceholder, context,
		QuestionPlaceholder, question,
	).Replace(f.template)
}
