// Package llm provides the chat capability on OpenAI chat completions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lukasbauer/evervoice/internal/core"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when neither the config nor the request names a model.
const DefaultModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey    string
	Model     string  // e.g., "gpt-4o-mini"
	BaseURL   string  // optional, for proxies and tests
	MaxTokens int     // reply length cap
	Temp      float32 // sampling temperature
}

// OpenAIClient implements core.ChatModel.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
	temp      float32
}

var _ core.ChatModel = (*OpenAIClient)(nil)

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 220
	}
	temp := cfg.Temp
	if temp == 0 {
		temp = 0.7
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: maxTokens,
		temp:      temp,
	}, nil
}

// Chat sends the system prompt, history and user text as one completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req core.ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if req.UserText != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserText})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   c.maxTokens,
		Temperature: c.temp,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
