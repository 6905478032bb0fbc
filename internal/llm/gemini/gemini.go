// Package gemini adapts genai GenerateContent to llm.Provider.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"ragchat/internal/llm"
)

// GenerateAPI is satisfied by *genai.Models.
type GenerateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Provider struct {
	api         GenerateAPI
	model       string
	temperature float32
	maxTokens   int32
}

var _ llm.Provider = (*Provider)(nil)

func New(api GenerateAPI, model string, temperature float32, maxTokens int) (*Provider, error) {
	if api == nil {
		return nil, errors.New("gemini chat: nil client")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Provider{api: api, model: model, temperature: temperature, maxTokens: int32(maxTokens)}, nil
}

func (p *Provider) Name() string { return "gemini:" + p.model }

func (p *Provider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	system, rest, err := llm.SplitSystem(messages)
	if err != nil {
		return "", err
	}
	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{genai.NewPartFromText(m.Content)}})
	}
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(p.temperature)}
	if p.maxTokens > 0 {
		cfg.MaxOutputTokens = p.maxTokens
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := p.api.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini chat: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini chat: empty response")
	}
	return text, nil
}
