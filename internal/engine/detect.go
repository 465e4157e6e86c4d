package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned by Detect when the selected provider lacks
// the credentials it needs. Callers run without an engine in that case.
var ErrNotConfigured = errors.New("llm provider not configured")

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Provider      string
	OllamaBaseURL string
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	MaxTokens     int
}

// ResolveProvider returns the provider Detect will use. An empty provider
// picks OpenAI when a key is present, then Gemini, then local Ollama.
func ResolveProvider(cfg DetectConfig) string {
	if p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p != "" {
		return p
	}
	switch {
	case cfg.OpenAIKey != "":
		return "openai"
	case cfg.GeminiKey != "":
		return "gemini"
	default:
		return "ollama"
	}
}

// Detect returns the Engine for the resolved provider.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	provider := ResolveProvider(cfg)
	switch provider {
	case "ollama":
		if cfg.OllamaBaseURL == "" {
			return nil, fmt.Errorf("%w: ollama base url is empty", ErrNotConfigured)
		}
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.MaxTokens), nil
	case "openai":
		if cfg.OpenAIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("%w: openai api key is empty", ErrNotConfigured)
		}
		return NewOpenAIEngine(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.MaxTokens), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("%w: gemini api key is empty", ErrNotConfigured)
		}
		return NewGeminiEngine(ctx, cfg.GeminiKey, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
