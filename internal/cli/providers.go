package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlenz-dev/aibroker/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers and their usability",
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	if len(cfg.Providers) == 0 {
		fmt.Println("No providers configured.")
		return nil
	}

	registry := provider.BuildRegistry(cfg.Providers, cfg.DefaultTimeout)

	for _, pc := range cfg.Providers {
		state := "unavailable"
		if registry.Find(pc.Name) != nil {
			state = "active"
		}
		fmt.Printf("%-14s %-8s %s\n", pc.Name, state, pc.DefaultModel)
		if verbose {
			fmt.Printf("               kind=%s base_url=%s reasoning_model=%s\n",
				pc.Kind, pc.BaseURL, pc.ReasoningModel)
		}
	}
	return nil
}
