package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces environment overrides for this subsystem.
	envPrefix = "LOREINDEX_"
)

// Load loads configuration from a YAML settings file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (LOREINDEX_ACTIVE_PROVIDER,
//     LOREINDEX_PROVIDERS_OPENAI_API_KEY, LOREINDEX_SEARCH_BATCH_SIZE, ...)
//  2. YAML settings file
//  3. Hardcoded defaults
//
// An empty configPath skips the file and loads defaults plus environment.
// Settings files carry API keys, so files with permissions wider than 0600
// are rejected.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			// Open once and validate through the file descriptor to
			// avoid a TOCTOU race.
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if err := validateConfigFileProperties(info); err != nil {
				return nil, fmt.Errorf("config file validation failed: %w", err)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envTransform maps environment variable names to config keys.
//
// Examples:
//
//	LOREINDEX_ACTIVE_PROVIDER             -> active_provider
//	LOREINDEX_SEARCH_BATCH_SIZE           -> search.batch_size
//	LOREINDEX_PROVIDERS_OPENAI_API_KEY    -> providers.openai.api_key
//	LOREINDEX_STORAGE_DATABASE_PATH       -> storage.database_path
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))

	// Top-level scalar fields have no section.
	if lower == "active_provider" {
		return lower
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	section, field := parts[0], parts[1]

	// providers.{id}.{field} needs one more split for the provider key.
	if section == "providers" {
		sub := strings.SplitN(field, "_", 2)
		if len(sub) == 2 {
			return section + "." + sub[0] + "." + sub[1]
		}
	}

	return section + "." + field
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip the permission check on Windows (different permission model).
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}
