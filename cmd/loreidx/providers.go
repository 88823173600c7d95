package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fablekit/loreindex/internal/provider"
	"github.com/fablekit/loreindex/internal/store"
)

// providersCmd lists configured providers and their index footprint.
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers",
	Long: `List every configured provider with its resolved models, whether
an API key is available, and how many embeddings the index holds under
its embedding model. API keys are never printed.

Examples:
  loreidx providers`,
	RunE: runProviders,
}

type providerInfo struct {
	ID              string `json:"id"`
	Active          bool   `json:"active"`
	BaseURL         string `json:"base_url,omitempty"`
	APIKeySet       bool   `json:"api_key_set"`
	EmbeddingModel  string `json:"embedding_model,omitempty"`
	GenerationModel string `json:"generation_model,omitempty"`
	IndexedVectors  int    `json:"indexed_vectors"`
}

func runProviders(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ids := make([]string, 0, len(a.cfg.Providers))
	for id := range a.cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	infos := make([]providerInfo, 0, len(ids))
	for _, id := range ids {
		resolved := provider.Resolve(provider.ID(id), a.cfg.Providers[id])
		resolved.ApplyDefaults(provider.ID(id))

		count := 0
		if resolved.EmbeddingModel != "" {
			count, err = a.embedder.Store().Count(cmd.Context(), store.Filter{Model: resolved.EmbeddingModel})
			if err != nil {
				return fmt.Errorf("count embeddings for %s: %w", id, err)
			}
		}

		infos = append(infos, providerInfo{
			ID:              id,
			Active:          id == a.cfg.ActiveProvider,
			BaseURL:         resolved.BaseURL,
			APIKeySet:       resolved.APIKey.IsSet(),
			EmbeddingModel:  resolved.EmbeddingModel,
			GenerationModel: resolved.GenerationModel,
			IndexedVectors:  count,
		})
	}

	out, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
