package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"meetsync/internal/services"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint
// through go-openai.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client from cfg. BaseURL may point at a
// self-hosted compatible server; blank means api.openai.com.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientConfig.BaseURL = strings.TrimSuffix(base, "/chat/completions")
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// Complete returns the plain-text answer for the prompts.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.create(ctx, systemPrompt, userPrompt, nil, "openai complete")
}

// CompleteJSON requests a JSON object answer.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	format := &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	return c.create(ctx, systemPrompt, userPrompt, format, "openai complete json")
}

func (c *OpenAIClient) create(ctx context.Context, systemPrompt, userPrompt string, format *openai.ChatCompletionResponseFormat, op string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: strings.TrimSpace(systemPrompt),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: strings.TrimSpace(userPrompt),
			},
		},
		ResponseFormat: format,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", services.Wrap(services.ErrTransient, "llm", op, "empty choices", nil)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", services.Wrap(services.ErrTransient, "llm", op, "empty completion", nil)
	}
	return content, nil
}

func classifyOpenAIError(op string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return services.Wrap(services.ErrTransient, "llm", op, "provider unavailable", err)
	}
	if status == 0 && !errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrTransient, "llm", op, "network failure", err)
	}
	return services.Wrap(services.ErrExternalTool, "llm", op, "request rejected", err)
}
