package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlenz-dev/aibroker/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Adapter is the uniform wrapper around one upstream backend.
type Adapter interface {
	// Name returns the registry name of the backend.
	Name() string

	// Complete executes a chat completion. All failure is encoded in the
	// Result; Complete never panics and never returns a Go error.
	Complete(ctx context.Context, req Request) Result
}

// ChatAdapter implements Adapter on top of a langchaingo model.
type ChatAdapter struct {
	cfg config.ProviderConfig
	llm llms.Model

	// defaultTimeout bounds calls whose request carries no timeout.
	defaultTimeout time.Duration
}

// Compile-time check that ChatAdapter implements Adapter.
var _ Adapter = (*ChatAdapter)(nil)

// NewAdapter creates an adapter for one configured backend. Returns an error
// when the tuple is unusable (missing credential, unknown kind); the registry
// treats that as "skip this backend", not as fatal.
func NewAdapter(cfg config.ProviderConfig, defaultTimeout time.Duration) (*ChatAdapter, error) {
	var model llms.Model
	var err error

	switch cfg.Kind {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s: API key required", cfg.Name)
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithModel(cfg.DefaultModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", cfg.Name, err)
		}

	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.DefaultModel),
			ollama.WithServerURL(cfg.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", cfg.Name, err)
		}

	default:
		return nil, fmt.Errorf("provider %s: unsupported kind %q", cfg.Name, cfg.Kind)
	}

	return &ChatAdapter{
		cfg:            cfg,
		llm:            model,
		defaultTimeout: defaultTimeout,
	}, nil
}

// Name returns the backend's registry name.
func (a *ChatAdapter) Name() string {
	return a.cfg.Name
}

// ResolveModel picks the concrete model for a request: explicit model first,
// then the reasoning model when requested, then the default.
func (a *ChatAdapter) ResolveModel(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	if req.UseReasoningModel {
		return a.cfg.ReasoningModel
	}
	return a.cfg.DefaultModel
}

// Complete executes the chat completion against the upstream backend.
func (a *ChatAdapter) Complete(ctx context.Context, req Request) Result {
	model := a.ResolveModel(req)

	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		text := m.Content
		// Some backends reject json_object mode when the prompt contains
		// markdown markup; strip it from system/user messages only.
		if req.WantsJSONObject() && m.Role != RoleAssistant {
			text = StripMarkup(text)
		}
		messages = append(messages, llms.TextParts(chatMessageType(m.Role), text))
	}

	opts := []llms.CallOption{llms.WithModel(model)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.Temperature))
	}
	if req.WantsJSONObject() {
		opts = append(opts, llms.WithJSONMode())
	}

	callCtx, cancel := context.WithTimeout(ctx, req.Timeout(a.defaultTimeout))
	defer cancel()

	start := time.Now()
	resp, err := a.llm.GenerateContent(callCtx, messages, opts...)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("provider call failed",
			"provider", a.cfg.Name, "model", model,
			"duration_ms", duration.Milliseconds(), "error", err)
		return Result{Err: err.Error(), Provider: a.cfg.Name, Model: model}
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		slog.Warn("provider returned empty content", "provider", a.cfg.Name, "model", model)
		return Result{Err: "provider returned empty content", Provider: a.cfg.Name, Model: model}
	}

	slog.Debug("provider call complete",
		"provider", a.cfg.Name, "model", model,
		"duration_ms", duration.Milliseconds(),
		"content_len", len(resp.Choices[0].Content))

	return Result{
		Content:  resp.Choices[0].Content,
		Provider: a.cfg.Name,
		Model:    model,
	}
}

func chatMessageType(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
