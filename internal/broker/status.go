package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/mlenz-dev/aibroker/internal/metrics"
	"github.com/mlenz-dev/aibroker/internal/models"
	"github.com/mlenz-dev/aibroker/internal/provider"
)

// Status of a deferred job as reported to pollers.
type Status string

const (
	StatusNotFound  Status = "not_found"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// PollResult is one status poll answer. Content and failure fields are only
// set for terminal statuses.
type PollResult struct {
	JobID    string  `json:"task_id"`
	Status   Status  `json:"status"`
	Content  *string `json:"content,omitempty"`
	Error    *string `json:"error,omitempty"`
	Provider *string `json:"provider_name,omitempty"`
	Model    *string `json:"model_used,omitempty"`
}

// Result converts a terminal poll into the result shape the original
// execution produced. Only meaningful for succeeded and failed statuses.
func (p PollResult) Result() provider.Result {
	var res provider.Result
	if p.Content != nil {
		res.Content = *p.Content
	}
	if p.Error != nil {
		res.Err = *p.Error
	}
	if p.Provider != nil {
		res.Provider = *p.Provider
	}
	if p.Model != nil {
		res.Model = *p.Model
	}
	return res
}

// StatusStore reads job and outcome rows. Implemented by *store.Client.
type StatusStore interface {
	QueryGetOutcome(ctx context.Context, id string) (*models.Outcome, error)
	QueryGetJob(ctx context.Context, id string) (*models.Job, error)
}

// Poller answers status questions about deferred jobs. Polling is read-only
// and idempotent: repeated polls of a terminal job return identical answers.
type Poller struct {
	store StatusStore
	stats *metrics.Collector
}

// NewPoller creates a poller. stats may be nil.
func NewPoller(store StatusStore, stats *metrics.Collector) *Poller {
	return &Poller{store: store, stats: stats}
}

// Poll resolves the status of one job id. The outcome row is authoritative:
// if it exists the job is terminal regardless of queue state; otherwise an
// existing job row means pending, and nothing at all means the id is
// unknown.
func (p *Poller) Poll(ctx context.Context, jobID string) (PollResult, error) {
	start := time.Now()
	res, err := p.poll(ctx, jobID)
	if p.stats != nil {
		p.stats.RecordCall(metrics.OpStatusPoll, time.Since(start), err != nil)
	}
	return res, err
}

func (p *Poller) poll(ctx context.Context, jobID string) (PollResult, error) {
	out := PollResult{JobID: jobID}

	outcome, err := p.store.QueryGetOutcome(ctx, jobID)
	if err != nil {
		return out, fmt.Errorf("reading outcome for %s: %w", jobID, err)
	}
	if outcome != nil {
		out.Content = outcome.Content
		out.Error = outcome.Error
		out.Provider = outcome.Provider
		out.Model = outcome.Model
		if outcome.Failed() {
			out.Status = StatusFailed
		} else {
			out.Status = StatusSucceeded
		}
		return out, nil
	}

	job, err := p.store.QueryGetJob(ctx, jobID)
	if err != nil {
		return out, fmt.Errorf("reading job %s: %w", jobID, err)
	}
	if job == nil {
		out.Status = StatusNotFound
		return out, nil
	}

	out.Status = StatusPending
	return out, nil
}
