package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlenz-dev/aibroker/internal/provider"
	"github.com/mlenz-dev/aibroker/internal/router"
)

var (
	chatProvider  string
	chatModel     string
	chatSystem    string
	chatReasoning bool
	chatJSON      bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Route a chat completion directly to a provider",
	Long: `Send a single prompt through the router and print the response.

Without --provider the configured backends are tried in round-robin order
with failover. With --provider the named backend is used exclusively.

Examples:
  aibroker chat "Explain goroutines in one paragraph"
  aibroker chat "Summarize this" --provider DeepSeek
  aibroker chat "Grade this essay" --reasoning --json`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatProvider, "provider", "p", "", "pin a specific provider (disables failover)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "override the provider's default model")
	chatCmd.Flags().StringVarP(&chatSystem, "system", "s", "", "system prompt")
	chatCmd.Flags().BoolVar(&chatReasoning, "reasoning", false, "use the provider's reasoning model")
	chatCmd.Flags().BoolVar(&chatJSON, "json", false, "request a JSON object response")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	registry := provider.BuildRegistry(cfg.Providers, cfg.DefaultTimeout)
	if registry.Len() == 0 {
		return fmt.Errorf("no providers available; set DS_API_KEY or AIBROKER_PROVIDERS_FILE")
	}

	r := router.New(registry, router.Config{
		RetryAttempts: cfg.RetryAttempts,
		Backoff:       cfg.RetryBackoff,
	}, nil)

	var messages []provider.Message
	if chatSystem != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: chatSystem})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: args[0]})

	req := provider.Request{
		Messages:          messages,
		Model:             chatModel,
		UseReasoningModel: chatReasoning,
	}
	if chatJSON {
		req.ResponseFormat = &provider.ResponseFormat{Type: "json_object"}
	}

	res := r.Route(ctx, req, chatProvider)
	if !res.OK() {
		return fmt.Errorf("completion failed: %s", res.Err)
	}

	if verbose {
		fmt.Printf("[%s / %s]\n\n", res.Provider, res.Model)
	}
	fmt.Println(res.Content)
	return nil
}
