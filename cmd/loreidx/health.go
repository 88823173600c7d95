package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fablekit/loreindex/internal/provider"
)

// healthCmd probes the active provider.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the active provider's health",
	Long: `Probe the active provider's API and report reachability, latency
and any models it advertises. Exits non-zero when the provider is
unhealthy.

Examples:
  loreidx health
  loreidx --config loreindex.yaml health`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	health, err := a.provider.HealthCheck(cmd.Context())
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	report := struct {
		Provider string   `json:"provider"`
		Status   string   `json:"status"`
		Latency  string   `json:"latency"`
		Message  string   `json:"message,omitempty"`
		Models   []string `json:"models,omitempty"`
	}{
		Provider: a.cfg.ActiveProvider,
		Status:   string(health.Status),
		Latency:  health.Latency.String(),
		Message:  health.Message,
		Models:   health.Models,
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if health.Status == provider.Unhealthy {
		return fmt.Errorf("provider %s is unhealthy", a.cfg.ActiveProvider)
	}
	return nil
}
