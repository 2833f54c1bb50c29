package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlenz-dev/aibroker/internal/broker"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Poll the status of a deferred task",
	Long: `Look up a deferred task by id and print its status.

A terminal task prints its content or failure; a pending task prints only
the status.

Examples:
  aibroker status 2f1a9c6e-...-d41b`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	poller := broker.NewPoller(storeClient, nil)
	poll, err := poller.Poll(ctx, args[0])
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	fmt.Printf("Task:   %s\n", poll.JobID)
	fmt.Printf("Status: %s\n", poll.Status)

	switch poll.Status {
	case broker.StatusSucceeded:
		if poll.Provider != nil && poll.Model != nil {
			fmt.Printf("Served: %s / %s\n", *poll.Provider, *poll.Model)
		}
		if poll.Content != nil {
			fmt.Printf("\n%s\n", *poll.Content)
		}
	case broker.StatusFailed:
		if poll.Error != nil {
			fmt.Printf("Error:  %s\n", *poll.Error)
		}
	}
	return nil
}
