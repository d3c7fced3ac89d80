package external

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/koalychatbot/koaly-telegram-bot/internal/chat"
	"github.com/koalychatbot/koaly-telegram-bot/internal/config"
	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// OpenAIProvider implements chat.CompletionProvider on the OpenAI chat
// completions API. The SDK owns transport and auth; this type owns prompt
// conversion and the mapping of API failures onto the domain error codes
// the chat service acts on.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIProvider builds the provider from the completion config. An
// empty BaseURL keeps the SDK default; a non-empty one points the client
// at a compatible endpoint (tests use an httptest server here).
func NewOpenAIProvider(cfg config.CompletionConfig, logger *slog.Logger) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey.Unmask())
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger,
	}
}

// Complete sends the ordered prompt and returns the assistant reply text.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt []types.ChatMessage) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt))
	for _, msg := range prompt {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    completionRole(msg.Role),
			Content: msg.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		return "", p.mapCompletionError(err)
	}

	if len(resp.Choices) == 0 {
		return "", types.NewAppError(
			types.ErrCodeUpstreamInvalidAnswer,
			"completion response contained no choices",
			nil,
		)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", types.NewAppError(
			types.ErrCodeUpstreamInvalidAnswer,
			"completion response contained an empty message",
			nil,
		)
	}
	return answer, nil
}

// completionRole maps a domain role onto the wire role. The two vocabularies
// coincide today; the indirection keeps the wire format out of the domain.
func completionRole(role types.MessageRole) string {
	switch role {
	case types.RoleSystem:
		return openai.ChatMessageRoleSystem
	case types.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// mapCompletionError translates SDK errors into AppErrors.
func (p *OpenAIProvider) mapCompletionError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return types.NewAppError(
				types.ErrCodeUpstreamRateLimited,
				"completion provider rate limit exceeded",
				err,
			)
		case apiErr.HTTPStatusCode >= 500:
			return types.NewAppError(
				types.ErrCodeUpstreamCompletion,
				"completion provider server error",
				err,
			)
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return types.NewAppError(
				types.ErrCodeUpstreamCompletion,
				"completion provider rejected the API key",
				err,
			)
		}
	}
	return types.NewAppError(
		types.ErrCodeUpstreamCompletion,
		"completion request failed",
		err,
	)
}

var _ chat.CompletionProvider = (*OpenAIProvider)(nil)
