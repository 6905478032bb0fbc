// Package anthropic adapts the Claude Messages API to llm.Provider.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ragchat/internal/env"
	"ragchat/internal/llm"
)

// MessagesAPI is satisfied by *anthropic.MessageService.
type MessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type Config struct {
	APIKeyEnv   string
	Model       string
	Temperature float32
	MaxTokens   int
}

type Provider struct {
	api         MessagesAPI
	model       string
	temperature float32
	maxTokens   int64
}

var _ llm.Provider = (*Provider)(nil)

// NewClient builds a provider backed by the hosted API.
func NewClient(cfg Config) (*Provider, error) {
	key, err := env.Lookup(cfg.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	client := anthropic.NewClient(option.WithAPIKey(key))
	return New(&client.Messages, cfg), nil
}

func New(api MessagesAPI, cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Provider{api: api, model: cfg.Model, temperature: cfg.Temperature, maxTokens: int64(cfg.MaxTokens)}
}

func (p *Provider) Name() string { return "anthropic:" + p.model }

func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	system, rest, err := llm.SplitSystem(messages)
	if err != nil {
		return "", err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(rest)),
	}
	for _, m := range rest {
		if m.Role == llm.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(float64(p.temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.api.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude chat: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("claude chat: no text in response")
	}
	return strings.TrimSpace(out.String()), nil
}
