package chain

import (
	"strings"

	"ragchat/internal/domain"
)

const qaTemplate = `Use the following pieces of context to answer the question at the end.
If you don't know the answer, just say that you don't know, don't try to make up an answer.
Use three sentences maximum. Keep the answer as concise as possible.
Always say "thanks for asking!" at the end of the answer.

{context}

Question: {question}
Helpful Answer:`

const condenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{chat_history}
Follow Up Input: {question}
Standalone question:`

// QAPrompt stuffs the retrieved chunks into the answer prompt.
func QAPrompt(results []domain.SearchResult, question string) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, strings.TrimSpace(r.Chunk.Text))
	}
	return strings.NewReplacer(
		"{context}", strings.Join(parts, "\n\n"),
		"{question}", question,
	).Replace(qaTemplate)
}

// CondensePrompt asks the model to fold history into a standalone question.
func CondensePrompt(history []domain.Turn, question string) string {
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Human: ")
		b.WriteString(t.Query)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Answer)
	}
	return strings.NewReplacer(
		"{chat_history}", b.String(),
		"{question}", question,
	).Replace(condenseTemplate)
}
