// Package llm defines the chat-completion port shared by the providers.
package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message. Role is one of the Role constants.
type Message struct {
	Role    string
	Content string
}

// Provider completes a conversation with a single assistant reply.
type Provider interface {
	Name() string
	Chat(ctx context.Context, messages []Message) (string, error)
}

var ErrNoUserMessage = errors.New("at least one user message is required")

// SplitSystem separates the first system message from the conversation.
// Providers that take the system prompt as a separate field use it.
func SplitSystem(messages []Message) (string, []Message, error) {
	var system string
	rest := make([]Message, 0, len(messages))
	hasUser := false
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system == "" {
				system = m.Content
			}
			continue
		case RoleUser:
			hasUser = true
		}
		rest = append(rest, m)
	}
	if !hasUser {
		return "", nil, ErrNoUserMessage
	}
	return system, rest, nil
}
