// Package router selects and executes provider adapters with retry and
// failover.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mlenz-dev/aibroker/internal/metrics"
	"github.com/mlenz-dev/aibroker/internal/provider"
)

// Config holds router policy knobs.
type Config struct {
	// RetryAttempts is the number of retry rounds after the initial one.
	RetryAttempts int

	// Backoff is the fixed sleep between rounds. The sleep blocks the
	// calling goroutine, which is why expensive requests are dispatched to
	// the worker path instead of being routed inline.
	Backoff time.Duration
}

// Router routes a request to one of the registered providers, retrying and
// failing over per policy. Safe for concurrent use.
type Router struct {
	registry *provider.Registry
	cfg      Config
	stats    *metrics.Collector

	// cursor is the shared round-robin starting index. A single atomic
	// counter: concurrent calls may share a starting index, but the counter
	// itself can never tear.
	cursor atomic.Uint64
}

// New creates a Router over the given registry. stats may be nil.
func New(registry *provider.Registry, cfg Config, stats *metrics.Collector) *Router {
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Router{registry: registry, cfg: cfg, stats: stats}
}

// Route executes the request against one or more candidate providers and
// returns the first successful non-empty result, or the last observed error
// after all attempts are exhausted.
//
// With an explicit provider name the candidate set is exactly that adapter
// and there is no failover; without one the full registry is tried in
// round-robin order starting from the shared cursor.
func (r *Router) Route(ctx context.Context, req provider.Request, explicitProvider string) provider.Result {
	start := time.Now()
	res := r.route(ctx, req, explicitProvider)
	if r.stats != nil {
		r.stats.RecordCall(metrics.OpRoute, time.Since(start), !res.OK())
	}
	return res
}

func (r *Router) route(ctx context.Context, req provider.Request, explicitProvider string) provider.Result {
	if r.registry.Len() == 0 {
		return provider.Result{Err: "no providers available"}
	}

	var candidates []provider.Adapter
	if explicitProvider != "" {
		adapter := r.registry.Find(explicitProvider)
		if adapter == nil {
			return provider.Result{Err: fmt.Sprintf("provider %q not found", explicitProvider)}
		}
		candidates = []provider.Adapter{adapter}
	} else {
		candidates = r.rotated()
	}

	attempts := r.cfg.RetryAttempts + 1
	var last provider.Result
	last.Err = "no providers attempted"

	for attempt := 0; attempt < attempts; attempt++ {
		for _, adapter := range candidates {
			slog.Info("routing attempt",
				"attempt", attempt+1, "of", attempts, "provider", adapter.Name())

			callStart := time.Now()
			res := adapter.Complete(ctx, req)
			if r.stats != nil {
				r.stats.RecordCall(metrics.OpProviderCall, time.Since(callStart), !res.OK())
				r.stats.RecordProviderCall(adapter.Name(), time.Since(callStart), !res.OK())
			}

			if res.OK() {
				return res
			}

			last = res
			if last.Err == "" {
				last.Err = "provider returned empty content"
			}
			slog.Warn("provider attempt failed", "provider", adapter.Name(), "error", last.Err)
		}

		if attempt+1 < attempts {
			if err := r.sleep(ctx); err != nil {
				last.Err = err.Error()
				return last
			}
		}
	}

	if explicitProvider != "" {
		return provider.Result{
			Err:      fmt.Sprintf("provider %s failed after %d attempts: %s", explicitProvider, attempts, last.Err),
			Provider: last.Provider,
			Model:    last.Model,
		}
	}
	return provider.Result{
		Err:      fmt.Sprintf("all attempts failed: %s", last.Err),
		Provider: last.Provider,
		Model:    last.Model,
	}
}

// rotated returns the full registry ordered from the current cursor position.
// The cursor advances by one per call regardless of outcome.
func (r *Router) rotated() []provider.Adapter {
	adapters := r.registry.Adapters()
	n := len(adapters)
	// Modulo before the int conversion so a wrapped counter stays in range.
	start := int((r.cursor.Add(1) - 1) % uint64(n))

	out := make([]provider.Adapter, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, adapters[(start+i)%n])
	}
	return out
}

// sleep waits out the inter-round backoff, honoring context cancellation.
func (r *Router) sleep(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
