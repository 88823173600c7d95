package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fablekit/loreindex/internal/search"
)

var (
	queryType  string
	queryTopK  int
	queryWorld string
)

// queryCmd runs a semantic query against the index.
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Query the embedding index",
	Long: `Embed the query text with the active provider and return the
closest indexed objects by cosine similarity.

Examples:
  # Top 10 across all object types
  loreidx query "ancient sword forged in dragonfire"

  # Only events, top 5
  loreidx query --type event --top-k 5 "the siege of the capital"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryType, "type", "", "restrict results to one object type (entity or event)")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "maximum results (default from config)")
	queryCmd.Flags().StringVar(&queryWorld, "world", "", "scope the query to one world")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []search.Option
	if queryWorld != "" {
		opts = append(opts, search.WithWorld(queryWorld))
	}
	svc, err := search.NewService(emptySource{}, a.embedder, a.cfg.Search, a.logger, opts...)
	if err != nil {
		return err
	}

	results, err := svc.Query(cmd.Context(), strings.Join(args, " "), queryType, queryTopK)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
