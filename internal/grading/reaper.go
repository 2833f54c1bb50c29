package grading

import (
	"context"
	"log/slog"
	"time"

	"github.com/mlenz-dev/aibroker/internal/metrics"
)

// staleReason is the failure reason written by the reaper. Kept distinct
// from parse and upstream failure reasons so log searches can tell the
// classes apart.
const staleReason = "grading timed out waiting for job result"

// ReaperStore is the sweep surface. Implemented by *store.Client.
type ReaperStore interface {
	QueryFailStaleGrading(ctx context.Context, cutoff time.Time, reason string) (int, error)
}

// Reaper fails grading records stuck in processing longer than the staleness
// threshold.
type Reaper struct {
	store      ReaperStore
	staleAfter time.Duration
	stats      *metrics.Collector
	log        *slog.Logger
}

// NewReaper creates a reaper. stats may be nil.
func NewReaper(store ReaperStore, staleAfter time.Duration, stats *metrics.Collector, log *slog.Logger) *Reaper {
	if staleAfter <= 0 {
		staleAfter = 2 * time.Hour
	}
	return &Reaper{store: store, staleAfter: staleAfter, stats: stats, log: log}
}

// Sweep fails every processing record last updated before now minus the
// staleness threshold. Returns the number of records reaped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	cutoff := start.Add(-r.staleAfter)

	reaped, err := r.store.QueryFailStaleGrading(ctx, cutoff, staleReason)
	if r.stats != nil {
		r.stats.RecordCall(metrics.OpReaperSweep, time.Since(start), err != nil)
	}
	if err != nil {
		return 0, err
	}
	if reaped > 0 {
		r.log.Warn("reaped stale grading records", "count", reaped, "cutoff", cutoff)
	}
	return reaped, nil
}
