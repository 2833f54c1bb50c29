package grading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic grading check and the reaper sweep on cron
// intervals.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// NewScheduler wires the checker and reaper onto @every schedules. Jobs
// overlapping their own interval are skipped rather than stacked.
func NewScheduler(checker *Checker, reaper *Reaper, checkInterval, reaperInterval time.Duration, log *slog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	_, err := c.AddFunc(fmt.Sprintf("@every %s", checkInterval), func() {
		if _, err := checker.CheckPending(context.Background()); err != nil {
			log.Error("grading check failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling grading check: %w", err)
	}

	_, err = c.AddFunc(fmt.Sprintf("@every %s", reaperInterval), func() {
		if _, err := reaper.Sweep(context.Background()); err != nil {
			log.Error("reaper sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling reaper: %w", err)
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running scheduled jobs in their own goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("grading scheduler started")
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
