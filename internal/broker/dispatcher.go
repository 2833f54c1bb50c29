// Package broker dispatches chat completion requests either inline or onto a
// queue for deferred execution, and exposes status for deferred jobs.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mlenz-dev/aibroker/internal/metrics"
	"github.com/mlenz-dev/aibroker/internal/provider"
	"github.com/mlenz-dev/aibroker/internal/queue"
	"github.com/mlenz-dev/aibroker/internal/router"
)

// DispatchConfig holds the sync/async routing policy.
type DispatchConfig struct {
	// SyncTimeoutLimit is the largest request timeout still served inline.
	SyncTimeoutLimit time.Duration

	// DeferredTimeout replaces the request timeout for queued work.
	DeferredTimeout time.Duration

	// LongQueue receives every deferred request. Both defer triggers
	// describe expensive work, so the dispatcher never produces onto the
	// default queue; that one carries work from other producers and is
	// drained by the same worker pool.
	LongQueue string
}

// envelope is the serialized form of a deferred request.
type envelope struct {
	Request  provider.Request `json:"request"`
	Provider string           `json:"provider,omitempty"`
}

// Dispatch is the dispatcher's answer: either a job id for deferred work or
// an inline result, never both.
type Dispatch struct {
	JobID  string
	Result *provider.Result
}

// Deferred reports whether the request was queued instead of served inline.
func (d Dispatch) Deferred() bool {
	return d.JobID != ""
}

// Dispatcher decides between inline routing and queued execution.
type Dispatcher struct {
	router *router.Router
	queue  queue.Queue
	cfg    DispatchConfig
	stats  *metrics.Collector
	log    *slog.Logger
}

// NewDispatcher creates a dispatcher. stats may be nil.
func NewDispatcher(r *router.Router, q queue.Queue, cfg DispatchConfig, stats *metrics.Collector, log *slog.Logger) *Dispatcher {
	return &Dispatcher{router: r, queue: q, cfg: cfg, stats: stats, log: log}
}

// Dispatch validates the request and either routes it inline, returning the
// result directly, or enqueues it and returns the job id to poll.
//
// A request is deferred when it asks for the reasoning model or when its
// timeout exceeds the sync limit. Deferred requests have their timeout
// widened to the deferred ceiling, since queue latency would otherwise eat
// the caller's budget.
func (d *Dispatcher) Dispatch(ctx context.Context, req provider.Request, explicitProvider string) (Dispatch, error) {
	start := time.Now()
	out, err := d.dispatch(ctx, req, explicitProvider)
	if d.stats != nil {
		d.stats.RecordCall(metrics.OpDispatch, time.Since(start), err != nil)
	}
	return out, err
}

func (d *Dispatcher) dispatch(ctx context.Context, req provider.Request, explicitProvider string) (Dispatch, error) {
	if err := req.Validate(); err != nil {
		return Dispatch{}, fmt.Errorf("invalid request: %w", err)
	}

	if !d.shouldDefer(req) {
		res := d.router.Route(ctx, req, explicitProvider)
		return Dispatch{Result: &res}, nil
	}

	deferred := req
	deferred.TimeoutSeconds = int(d.cfg.DeferredTimeout.Seconds())

	payload, err := json.Marshal(envelope{Request: deferred, Provider: explicitProvider})
	if err != nil {
		return Dispatch{}, fmt.Errorf("encoding deferred request: %w", err)
	}

	jobID := uuid.NewString()
	queueName := d.cfg.LongQueue
	if err := d.queue.Enqueue(ctx, queueName, jobID, payload); err != nil {
		return Dispatch{}, fmt.Errorf("enqueueing job: %w", err)
	}

	d.log.Info("request deferred",
		"job_id", jobID, "queue", queueName,
		"reasoning", req.UseReasoningModel, "timeout_s", req.TimeoutSeconds)
	return Dispatch{JobID: jobID}, nil
}

// shouldDefer reports whether the request must run on the worker path.
func (d *Dispatcher) shouldDefer(req provider.Request) bool {
	return req.UseReasoningModel || req.TimeoutSeconds > int(d.cfg.SyncTimeoutLimit.Seconds())
}
