package provider

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fablekit/loreindex/internal/config"
)

// New constructs a Provider from an explicit ID and a resolved config. This
// is the only place a Config becomes a Provider instance.
func New(id ID, cfg Config, logger *zap.Logger) (Provider, error) {
	switch id {
	case Local:
		return NewLocalProvider(cfg, logger)
	case OpenAI:
		return NewOpenAIProvider(cfg, logger)
	case Anthropic:
		return NewAnthropicProvider(cfg, logger)
	case Gemini:
		return NewGeminiProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, id)
	}
}

// Resolve builds the immutable Config snapshot for a provider from persisted
// settings, falling back to environment variables for absent fields. The
// fallback is resolved here, once, at the boundary.
func Resolve(id ID, s config.ProviderSettings) Config {
	cfg := Config{
		BaseURL:            s.BaseURL,
		APIKey:             s.APIKey,
		EmbeddingModel:     s.EmbeddingModel,
		GenerationModel:    s.GenerationModel,
		EmbeddingDimension: s.EmbeddingDimension,
		MaxTokens:          s.MaxTokens,
		Timeout:            s.Timeout.Duration(),
		MaxRetries:         s.MaxRetries,
		RetryBackoff:       s.RetryBackoff.Duration(),
		FailureThreshold:   s.FailureThreshold,
		BreakerTimeout:     s.BreakerTimeout.Duration(),
	}

	if !cfg.APIKey.IsSet() {
		cfg.APIKey = config.Secret(os.Getenv(apiKeyEnv(id)))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv(baseURLEnv(id))
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = os.Getenv("EMBEDDING_MODEL")
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = os.Getenv("GENERATION_MODEL")
	}

	return cfg
}

// NewFromSettings resolves settings for the given provider ID and constructs
// the Provider in one step.
func NewFromSettings(id ID, s config.ProviderSettings, logger *zap.Logger) (Provider, error) {
	return New(id, Resolve(id, s), logger)
}

func apiKeyEnv(id ID) string {
	switch id {
	case OpenAI:
		return "OPENAI_API_KEY"
	case Anthropic:
		return "ANTHROPIC_API_KEY"
	case Gemini:
		return "GEMINI_API_KEY"
	default:
		return "LOCAL_API_KEY"
	}
}

func baseURLEnv(id ID) string {
	switch id {
	case OpenAI:
		return "OPENAI_BASE_URL"
	case Anthropic:
		return "ANTHROPIC_BASE_URL"
	case Gemini:
		return "GEMINI_BASE_URL"
	default:
		return "LOCAL_BASE_URL"
	}
}
