// Package chain answers questions from retrieved chunks, with or without
// conversational memory.
package chain

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/llm"
)

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

// Answer is the model reply plus the chunks it was grounded on. Question is
// the question as the user asked it.
type Answer struct {
	Text     string
	Question string
	Sources  []domain.SearchResult
}

// SourceNames lists the distinct sources of the answer in retrieval order.
func (a Answer) SourceNames() []string {
	seen := make(map[string]struct{}, len(a.Sources))
	var out []string
	for _, s := range a.Sources {
		if _, ok := seen[s.Chunk.Source]; ok {
			continue
		}
		seen[s.Chunk.Source] = struct{}{}
		out = append(out, s.Chunk.Source)
	}
	return out
}

type Chain struct {
	provider  llm.Provider
	retriever Retriever
	topK      int
	logger    *zap.Logger
}

func New(provider llm.Provider, retriever Retriever, topK int, logger *zap.Logger) *Chain {
	if topK <= 0 {
		topK = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{provider: provider, retriever: retriever, topK: topK, logger: logger}
}

// Ask answers question in the context of mem. When mem already holds turns
// the question is first rewritten into a standalone one. The new turn is
// recorded only on success.
func (c *Chain) Ask(ctx context.Context, mem *Memory, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, domain.ErrEmptyQuestion
	}
	standalone := question
	if mem != nil && mem.Len() > 0 {
		rewritten, err := c.provider.Chat(ctx, []llm.Message{
			{Role: llm.RoleUser, Content: CondensePrompt(mem.Turns(), question)},
		})
		if err != nil {
			return Answer{}, fmt.Errorf("condense question: %w", err)
		}
		if s := strings.TrimSpace(rewritten); s != "" {
			standalone = s
		}
		c.logger.Debug("condensed question", zap.String("question", question), zap.String("standalone", standalone))
	}
	ans, err := c.answer(ctx, standalone)
	if err != nil {
		return Answer{}, err
	}
	ans.Question = question
	if mem != nil {
		mem.Add(domain.Turn{Query: question, Answer: ans.Text, Sources: ans.SourceNames()})
	}
	return ans, nil
}

// AskOnce answers a single question without memory.
func (c *Chain) AskOnce(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, domain.ErrEmptyQuestion
	}
	return c.answer(ctx, question)
}

func (c *Chain) answer(ctx context.Context, question string) (Answer, error) {
	results, err := c.retriever.Search(ctx, question, c.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}
	reply, err := c.provider.Chat(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: QAPrompt(results, question)},
	})
	if err != nil {
		return Answer{}, fmt.Errorf("answer: %w", err)
	}
	c.logger.Info("answered",
		zap.String("provider", c.provider.Name()),
		zap.Int("sources", len(results)))
	return Answer{Text: strings.TrimSpace(reply), Question: question, Sources: results}, nil
}
