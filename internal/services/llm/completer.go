package llm

import (
	"context"
	"strings"
)

// Completer is the text completion collaborator used for speaker
// identification, summaries, and project tagging.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewCompleter returns the client for cfg.Provider. "openai" selects the
// go-openai client; anything else uses the OpenRouter HTTP client.
func NewCompleter(cfg Config, opts ...Option) Completer {
	if strings.EqualFold(strings.TrimSpace(cfg.Provider), "openai") {
		return NewOpenAIClient(cfg)
	}
	return NewClient(cfg, opts...)
}

// TrimInput caps text at maxTokens worth of characters, using the rough
// four characters per token ratio. A non-positive limit returns text as is.
func TrimInput(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	limit := maxTokens * 4
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
