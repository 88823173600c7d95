// Package main implements the loreidx CLI for indexing worldbuilding
// objects and querying the embedding index.
package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fablekit/loreindex/internal/config"
	"github.com/fablekit/loreindex/internal/embedding"
	"github.com/fablekit/loreindex/internal/logging"
	"github.com/fablekit/loreindex/internal/provider"
	"github.com/fablekit/loreindex/internal/store"
)

var (
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loreidx",
	Short: "CLI for the loreindex embedding and search subsystem",
	Long: `loreidx indexes worldbuilding objects into an embedding store and
answers semantic queries against it. Provider credentials come from the
config file or LOREINDEX_* / provider API key environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(providersCmd)
}

// app bundles everything a command needs after wiring.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	provider provider.Provider
	db       *sql.DB
	embedder *embedding.Service
}

func (a *app) Close() {
	if a.provider != nil {
		_ = a.provider.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// buildApp loads config and wires the provider, store and embedding
// service. Callers must Close the returned app.
func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	id := provider.ID(cfg.ActiveProvider)
	a.provider, err = provider.NewFromSettings(id, cfg.Active(), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init provider %q: %w", cfg.ActiveProvider, err)
	}

	a.db, err = sql.Open("sqlite", cfg.Storage.DatabasePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open database %q: %w", cfg.Storage.DatabasePath, err)
	}

	st, err := store.New(a.db)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	a.embedder, err = embedding.NewService(a.provider, st, cfg.Storage.IndexDir, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init embedding service: %w", err)
	}
	return a, nil
}
