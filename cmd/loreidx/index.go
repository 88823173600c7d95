package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fablekit/loreindex/internal/search"
)

var (
	indexTypes   []string
	indexWorld   string
	indexExclude []string
)

// indexCmd rebuilds the embedding index from a JSON objects file.
var indexCmd = &cobra.Command{
	Use:   "index <objects.json>",
	Short: "Rebuild the embedding index from an objects file",
	Long: `Rebuild the embedding index incrementally. Objects whose indexable
text is unchanged under the active model are skipped; failed batches leave
their objects stale and are reported without aborting the pass.

Examples:
  # Index everything in a world export
  loreidx index world.json

  # Only entities, scoped to one world
  loreidx index --types entity --world w-42 world.json`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringSliceVar(&indexTypes, "types", nil, "object types to index (default: entity,event)")
	indexCmd.Flags().StringVar(&indexWorld, "world", "", "scope indexing to one world")
	indexCmd.Flags().StringSliceVar(&indexExclude, "exclude", nil, "attribute names to exclude from indexable text (default: configured list)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	source, err := newFileSource(args[0])
	if err != nil {
		return err
	}

	var opts []search.Option
	if indexWorld != "" {
		opts = append(opts, search.WithWorld(indexWorld))
	}
	svc, err := search.NewService(source, a.embedder, a.cfg.Search, a.logger, opts...)
	if err != nil {
		return err
	}

	var exclude []string
	if cmd.Flags().Changed("exclude") {
		exclude = indexExclude
		if exclude == nil {
			exclude = []string{}
		}
	}
	stats, rebuildErr := svc.RebuildIndex(cmd.Context(), indexTypes, exclude)

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if rebuildErr != nil {
		return fmt.Errorf("rebuild completed with errors: %w", rebuildErr)
	}
	return nil
}
