package config

import (
	"fmt"
)

// Config is the top-level application configuration.
type Config struct {
	// ActiveProvider selects which provider the embedding and search
	// services use. One of: local, openai, anthropic, gemini.
	ActiveProvider string `koanf:"active_provider"`

	// Providers holds per-provider connection settings, keyed by
	// provider ID.
	Providers map[string]ProviderSettings `koanf:"providers"`

	Storage StorageConfig `koanf:"storage"`
	Search  SearchConfig  `koanf:"search"`
	Logging LoggingConfig `koanf:"logging"`
}

// ProviderSettings holds the persisted settings for one provider. Absent
// fields fall back to environment variables at resolution time.
type ProviderSettings struct {
	BaseURL            string   `koanf:"base_url"`
	APIKey             Secret   `koanf:"api_key"`
	EmbeddingModel     string   `koanf:"embedding_model"`
	GenerationModel    string   `koanf:"generation_model"`
	EmbeddingDimension int      `koanf:"embedding_dimension"`
	MaxTokens          int      `koanf:"max_tokens"`
	Timeout            Duration `koanf:"timeout"`
	MaxRetries         int      `koanf:"max_retries"`
	RetryBackoff       Duration `koanf:"retry_backoff"`
	FailureThreshold   int      `koanf:"failure_threshold"`
	BreakerTimeout     Duration `koanf:"breaker_timeout"`
}

// StorageConfig locates the embedding database and the per-model index
// metadata sidecar files.
type StorageConfig struct {
	// DatabasePath is the sqlite file holding the embeddings table.
	DatabasePath string `koanf:"database_path"`

	// IndexDir is the directory for IndexMetadata sidecar files.
	IndexDir string `koanf:"index_dir"`
}

// SearchConfig tunes indexing and retrieval.
type SearchConfig struct {
	// BatchSize bounds how many texts go into one embedding call.
	BatchSize int `koanf:"batch_size"`

	// TopK is the default result count for queries.
	TopK int `koanf:"top_k"`

	// ExcludedAttributes lists attribute keys never included in
	// indexable text, in addition to the reserved private prefix.
	ExcludedAttributes []string `koanf:"excluded_attributes"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// knownProviders are the valid ActiveProvider values.
var knownProviders = map[string]bool{
	"local":     true,
	"openai":    true,
	"anthropic": true,
	"gemini":    true,
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !knownProviders[c.ActiveProvider] {
		return fmt.Errorf("unknown active_provider %q", c.ActiveProvider)
	}
	if c.Search.BatchSize < 0 {
		return fmt.Errorf("search.batch_size cannot be negative")
	}
	if c.Search.TopK < 0 {
		return fmt.Errorf("search.top_k cannot be negative")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// Active returns the settings for the active provider. Missing entries
// return a zero value; resolution fills the gaps from the environment.
func (c *Config) Active() ProviderSettings {
	return c.Providers[c.ActiveProvider]
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.ActiveProvider == "" {
		cfg.ActiveProvider = "local"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "loreindex.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "index"
	}
	if cfg.Search.BatchSize == 0 {
		cfg.Search.BatchSize = 32
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
