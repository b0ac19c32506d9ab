package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/loubnaelmalali29-code/chip/internal/config"
)

// NewProvider builds the backend selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.ModelConfig) (Provider, error) {
	opts := providerOptions{
		Model:       strings.TrimSpace(cfg.Model),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.BaseURL, opts)
	case "anthropic":
		return NewAnthropicProvider(cfg.AnthropicKey, cfg.BaseURL, opts)
	case "google", "gemini":
		return NewGoogleProvider(ctx, cfg.GeminiAPIKey, opts)
	case "ollama":
		return NewOllamaProvider(cfg.OllamaHost, nil, opts)
	case "stub":
		return NewStubProvider(cfg.StubReply), nil
	default:
		return nil, fmt.Errorf("unknown model provider: %s", cfg.Provider)
	}
}
