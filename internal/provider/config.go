package provider

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fablekit/loreindex/internal/config"
)

// Config is the resolved, immutable configuration snapshot used to construct
// one Provider instance. It is owned by the factory for the lifetime of that
// instance; re-configuration always produces a new Provider.
type Config struct {
	// BaseURL is the API root, without a trailing slash.
	BaseURL string

	// APIKey authenticates hosted providers. Optional for Local.
	APIKey config.Secret

	// EmbeddingModel is the model used by Embed.
	EmbeddingModel string

	// GenerationModel is the model used by Generate and StreamGenerate.
	GenerationModel string

	// EmbeddingDimension overrides the dimension derived from the model
	// name. Zero means derive.
	EmbeddingDimension int

	// MaxTokens is the default completion budget when a request does not
	// set one.
	MaxTokens int

	// Timeout bounds each non-streaming provider call.
	Timeout time.Duration

	// MaxRetries and RetryBackoff shape the retry policy.
	MaxRetries   int
	RetryBackoff time.Duration

	// FailureThreshold and BreakerTimeout shape the circuit breaker.
	FailureThreshold int
	BreakerTimeout   time.Duration
}

// Validate validates the configuration for the given provider ID.
func (c Config) Validate(id ID) error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("%w: invalid base URL: %v", ErrInvalidConfig, err)
	}
	if id != Local && !c.APIKey.IsSet() {
		return fmt.Errorf("%w: API key required for %s", ErrInvalidConfig, id)
	}
	return nil
}

// ApplyDefaults fills unset fields with per-provider defaults.
func (c *Config) ApplyDefaults(id ID) {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL(id)
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = defaultEmbeddingModel(id)
	}
	if c.GenerationModel == "" {
		c.GenerationModel = defaultGenerationModel(id)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	if c.EmbeddingDimension == 0 {
		c.EmbeddingDimension = embeddingDimension(c.EmbeddingModel)
	}
}

func defaultBaseURL(id ID) string {
	switch id {
	case OpenAI:
		return "https://api.openai.com"
	case Anthropic:
		return "https://api.anthropic.com"
	case Gemini:
		return "https://generativelanguage.googleapis.com"
	default:
		return "http://localhost:1234"
	}
}

func defaultEmbeddingModel(id ID) string {
	switch id {
	case OpenAI:
		return "text-embedding-3-small"
	case Gemini:
		return "text-embedding-004"
	case Anthropic:
		return "" // no embedding endpoint
	default:
		return "nomic-embed-text-v1.5"
	}
}

func defaultGenerationModel(id ID) string {
	switch id {
	case OpenAI:
		return "gpt-4o-mini"
	case Anthropic:
		return "claude-3-5-haiku-latest"
	case Gemini:
		return "gemini-1.5-flash"
	default:
		return "local-model"
	}
}

// knownDimensions maps exact embedding model names to their output width.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
	"nomic-embed-text-v1.5":  768,
	"BAAI/bge-small-en-v1.5": 384,
	"BAAI/bge-base-en-v1.5":  768,
	"BAAI/bge-large-en-v1.5": 1024,
	"all-MiniLM-L6-v2":       384,
	"mxbai-embed-large":      1024,
}

// embeddingDimension returns the dimension for a model name, falling back to
// name heuristics and finally 384.
func embeddingDimension(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	case strings.Contains(lower, "small"), strings.Contains(lower, "mini"):
		return 384
	default:
		return 384
	}
}
