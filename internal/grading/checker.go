package grading

import (
	"context"
	"log/slog"
	"time"

	"github.com/mlenz-dev/aibroker/internal/broker"
	"github.com/mlenz-dev/aibroker/internal/metrics"
	"github.com/mlenz-dev/aibroker/internal/models"
)

// Checker periodically resolves in-flight grading records against the status
// of their dispatched jobs.
type Checker struct {
	service *Service
	poller  *broker.Poller
	store   Store
	stats   *metrics.Collector
	log     *slog.Logger
}

// NewChecker creates a checker. stats may be nil.
func NewChecker(service *Service, poller *broker.Poller, store Store, stats *metrics.Collector, log *slog.Logger) *Checker {
	return &Checker{service: service, poller: poller, store: store, stats: stats, log: log}
}

// CheckPending polls every processing record once and applies any terminal
// job status. Records whose jobs are still pending are left alone; a job id
// the broker no longer knows means the work was lost and the record fails.
// Returns the number of records moved to a terminal state.
func (c *Checker) CheckPending(ctx context.Context) (int, error) {
	start := time.Now()
	settled, err := c.check(ctx)
	if c.stats != nil {
		c.stats.RecordCall(metrics.OpGradingCheck, time.Since(start), err != nil)
	}
	return settled, err
}

func (c *Checker) check(ctx context.Context) (int, error) {
	records, err := c.store.QueryProcessingGradingRecords(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if c.checkOne(ctx, rec) {
			settled++
		}
	}
	return settled, nil
}

func (c *Checker) checkOne(ctx context.Context, rec models.GradingRecord) bool {
	submissionID, err := models.RecordIDString(rec.ID)
	if err != nil {
		c.log.Warn("skipping grading record with unexpected id", "error", err)
		return false
	}
	if rec.JobID == nil || *rec.JobID == "" || *rec.JobID == "inline" {
		c.log.Warn("processing record without a job id", "submission_id", submissionID)
		return false
	}

	poll, err := c.poller.Poll(ctx, *rec.JobID)
	if err != nil {
		c.log.Warn("status poll failed",
			"submission_id", submissionID, "job_id", *rec.JobID, "error", err)
		return false
	}

	switch poll.Status {
	case broker.StatusPending:
		return false
	case broker.StatusNotFound:
		reason := "dispatched job no longer exists"
		if _, err := c.store.QueryFailGrading(ctx, submissionID, reason); err != nil {
			c.log.Error("failed to fail grading record",
				"submission_id", submissionID, "error", err)
			return false
		}
		c.log.Warn("grading job lost", "submission_id", submissionID, "job_id", *rec.JobID)
		return true
	default:
		res := poll.Result()
		if err := c.service.ApplyResult(ctx, submissionID, rec.MaxScore, res); err != nil {
			c.log.Error("failed to apply grading result",
				"submission_id", submissionID, "error", err)
			return false
		}
		return true
	}
}
