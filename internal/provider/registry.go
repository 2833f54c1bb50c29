package provider

import (
	"log/slog"
	"strings"
	"time"

	"github.com/mlenz-dev/aibroker/internal/config"
)

// Registry is the ordered, read-only set of configured adapters. Built once
// at process start; safe for concurrent reads.
type Registry struct {
	adapters []Adapter
}

// BuildRegistry constructs adapters for every configured backend. Backends
// that fail to initialize (missing credentials, bad config) are logged and
// skipped, never fatal.
func BuildRegistry(cfgs []config.ProviderConfig, defaultTimeout time.Duration) *Registry {
	adapters := make([]Adapter, 0, len(cfgs))
	for _, cfg := range cfgs {
		adapter, err := NewAdapter(cfg, defaultTimeout)
		if err != nil {
			slog.Warn("skipping provider", "provider", cfg.Name, "error", err)
			continue
		}
		slog.Info("provider initialized",
			"provider", cfg.Name,
			"default_model", cfg.DefaultModel,
			"reasoning_model", cfg.ReasoningModel)
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		slog.Error("no providers initialized; completion requests will fail")
	}

	return &Registry{adapters: adapters}
}

// NewRegistry wraps an explicit adapter list. Used by tests and by callers
// that build adapters themselves.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Adapters returns the ordered adapter list. Callers must not mutate it.
func (r *Registry) Adapters() []Adapter {
	return r.adapters
}

// Find returns the adapter with the given name (case-insensitive), or nil.
func (r *Registry) Find(name string) Adapter {
	for _, a := range r.adapters {
		if strings.EqualFold(a.Name(), name) {
			return a
		}
	}
	return nil
}

// Names returns the registry's provider names in order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Len returns the number of initialized adapters.
func (r *Registry) Len() int {
	return len(r.adapters)
}
