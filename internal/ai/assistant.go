// Package ai produces assistant replies for chat sessions through an
// OpenAI-compatible chat completion API.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"portalchat/internal/model"
)

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxContext   int
}

// HistoryReader returns the most recent messages of a session, oldest first.
type HistoryReader interface {
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
}

type Assistant struct {
	client  *openai.Client
	history HistoryReader
	cfg     Config
}

func NewAssistant(cfg Config, history HistoryReader) *Assistant {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.MaxContext <= 0 {
		cfg.MaxContext = 20
	}
	return &Assistant{
		client:  openai.NewClientWithConfig(clientConfig),
		history: history,
		cfg:     cfg,
	}
}

// Respond asks the model for the next assistant turn of a session.
func (a *Assistant) Respond(ctx context.Context, sessionID string) (string, error) {
	history, err := a.history.RecentMessages(ctx, sessionID, a.cfg.MaxContext)
	if err != nil {
		return "", fmt.Errorf("load assistant context failed: %w", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if a.cfg.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: a.cfg.SystemPrompt,
		})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.cfg.Model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("assistant completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty assistant choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("empty assistant reply")
	}
	return reply, nil
}

func toOpenAIRole(role string) string {
	if role == model.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
