// Package cli provides the command-line interface for the broker.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlenz-dev/aibroker/internal/config"
	"github.com/mlenz-dev/aibroker/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and store client
	cfg         config.Config
	storeClient *store.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "aibroker",
	Short: "Multi-provider LLM inference broker",
	Long: `aibroker mediates between callers and several interchangeable LLM
backends: it routes chat requests with retry and failover, defers expensive
work onto a queue, and tracks deferred jobs from dispatch to outcome.

The chat command routes a prompt directly; status and grades inspect
deferred work and grading records through the broker's database.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// chat needs only the provider registry, not the database.
		if cmd.Name() == "chat" || cmd.Name() == "providers" {
			return nil
		}

		ctx := context.Background()
		storeCfg := store.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}
		storeClient, err = store.NewClient(ctx, storeCfg, nil)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if storeClient != nil {
			if err := storeClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(gradesCmd)
	rootCmd.AddCommand(providersCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
