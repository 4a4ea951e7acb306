// Package openai analyzes submissions with a chat completion model.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/analysis"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/domain/uploads"
	"github.com/yashchaudhari07/dpr-sparkle-insight/internal/infra/ai/prompt"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 4096
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client implements analysis.Analyzer.
type Client struct {
	chat      chatCompleter
	Model     string
	MaxTokens int
}

var _ analysis.Analyzer = (*Client)(nil)

// NewClient talks to the OpenAI API, or to a compatible server when baseURL is set.
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{chat: openai.NewClientWithConfig(cfg), Model: model}
}

func (c *Client) Analyze(ctx context.Context, files []uploads.WorkUnit) (analysis.Findings, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	limit := c.MaxTokens
	if limit <= 0 {
		limit = defaultMaxTokens
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(files)},
		},
	}
	// Reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens instead of MaxTokens
	if isReasoningModel(model) {
		req.MaxCompletionTokens = limit
	} else {
		req.MaxTokens = limit
	}

	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return analysis.Findings{}, fmt.Errorf("%w: %v", analysis.ErrQuotaExceeded, err)
		}
		return analysis.Findings{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return analysis.Findings{}, errors.New("chat completion returned no choices")
	}
	return prompt.ParseFindings(resp.Choices[0].Message.Content)
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}
