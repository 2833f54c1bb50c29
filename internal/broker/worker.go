package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mlenz-dev/aibroker/internal/metrics"
	"github.com/mlenz-dev/aibroker/internal/provider"
	"github.com/mlenz-dev/aibroker/internal/queue"
	"github.com/mlenz-dev/aibroker/internal/router"
)

// OutcomeStore persists terminal results for deferred jobs. Implemented by
// *store.Client.
type OutcomeStore interface {
	QueryUpsertOutcome(ctx context.Context, id string, content, errMsg, providerName, model *string) error
}

// WorkerConfig holds the worker pool policy.
type WorkerConfig struct {
	// Queues lists the queue names this pool consumes.
	Queues []string

	// Concurrency is the number of goroutines per queue.
	Concurrency int

	// TimeLimit is the hard per-job execution ceiling, independent of the
	// request's own timeout.
	TimeLimit time.Duration
}

// WorkerPool consumes deferred jobs, executes them through the router and
// persists an outcome per job id. Outcome writes are idempotent, so a
// redelivered job that already completed just overwrites an equivalent row.
type WorkerPool struct {
	router *router.Router
	queue  queue.Queue
	store  OutcomeStore
	cfg    WorkerConfig
	stats  *metrics.Collector
	log    *slog.Logger

	wg sync.WaitGroup
}

// NewWorkerPool creates a worker pool. stats may be nil.
func NewWorkerPool(r *router.Router, q queue.Queue, store OutcomeStore, cfg WorkerConfig, stats *metrics.Collector, log *slog.Logger) *WorkerPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = 30 * time.Minute
	}
	return &WorkerPool{router: r, queue: q, store: store, cfg: cfg, stats: stats, log: log}
}

// Start launches the consumers. They run until their delivery channels close
// or ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for _, name := range p.cfg.Queues {
		ch := p.queue.Consume(name)
		for i := 0; i < p.cfg.Concurrency; i++ {
			p.wg.Add(1)
			go p.consume(ctx, name, ch)
		}
	}
	p.log.Info("worker pool started",
		"queues", p.cfg.Queues, "concurrency", p.cfg.Concurrency)
}

// Wait blocks until all consumers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) consume(ctx context.Context, queueName string, ch <-chan queue.Message) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.handle(ctx, msg)
		}
	}
}

// handle executes one delivery end to end. The queue is only nacked when the
// outcome write fails; execution failures are themselves outcomes and must
// not trigger redelivery.
func (p *WorkerPool) handle(ctx context.Context, msg queue.Message) {
	start := time.Now()
	res := p.execute(ctx, msg)
	if p.stats != nil {
		p.stats.RecordCall(metrics.OpJobExecute, time.Since(start), !res.OK())
	}

	if err := p.writeOutcome(ctx, msg.ID, res); err != nil {
		p.log.Error("failed to persist outcome, requeueing",
			"job_id", msg.ID, "error", err)
		if nerr := p.queue.Nack(ctx, msg); nerr != nil {
			p.log.Error("nack failed", "job_id", msg.ID, "error", nerr)
		}
		return
	}

	if err := p.queue.Ack(ctx, msg); err != nil {
		p.log.Warn("ack failed", "job_id", msg.ID, "error", err)
	}

	if res.OK() {
		p.log.Info("job completed",
			"job_id", msg.ID, "provider", res.Provider, "model", res.Model,
			"duration", time.Since(start))
	} else {
		p.log.Warn("job failed",
			"job_id", msg.ID, "error", res.Err, "duration", time.Since(start))
	}
}

// execute decodes and runs the job, converting panics and malformed payloads
// into failure results.
func (p *WorkerPool) execute(ctx context.Context, msg queue.Message) (res provider.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in job execution", "job_id", msg.ID, "panic", r)
			res = provider.Result{Err: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return provider.Result{Err: fmt.Sprintf("malformed job payload: %v", err)}
	}
	if err := env.Request.Validate(); err != nil {
		return provider.Result{Err: fmt.Sprintf("invalid job payload: %v", err)}
	}

	execCtx, cancel := context.WithTimeout(ctx, p.cfg.TimeLimit)
	defer cancel()

	return p.router.Route(execCtx, env.Request, env.Provider)
}

func (p *WorkerPool) writeOutcome(ctx context.Context, jobID string, res provider.Result) error {
	var content, errMsg, providerName, model *string
	if res.Content != "" {
		content = &res.Content
	}
	if res.Err != "" {
		errMsg = &res.Err
	}
	if res.Provider != "" {
		providerName = &res.Provider
	}
	if res.Model != "" {
		model = &res.Model
	}
	return p.store.QueryUpsertOutcome(ctx, jobID, content, errMsg, providerName, model)
}
