// Package grading drives the deferred grading lifecycle: request a grade for
// a submission, track the dispatched job through the state machine, apply
// extracted results and sweep stuck records.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mlenz-dev/aibroker/internal/broker"
	"github.com/mlenz-dev/aibroker/internal/extract"
	"github.com/mlenz-dev/aibroker/internal/models"
	"github.com/mlenz-dev/aibroker/internal/provider"
	"github.com/mlenz-dev/aibroker/internal/store"
)

// Store is the grading persistence surface. Implemented by *store.Client.
type Store interface {
	QueryCreateGradingRecord(ctx context.Context, submissionID string, maxScore float64) (*models.GradingRecord, error)
	QueryGetGradingRecord(ctx context.Context, submissionID string) (*models.GradingRecord, error)
	QueryMarkGradingProcessing(ctx context.Context, submissionID, jobID string) (bool, error)
	QueryCompleteGrading(ctx context.Context, submissionID string, score float64, comment string, similarity *float64) (bool, error)
	QueryFailGrading(ctx context.Context, submissionID, reason string) (bool, error)
	QuerySkipGrading(ctx context.Context, submissionID, reason string) (bool, error)
	QueryProcessingGradingRecords(ctx context.Context) ([]models.GradingRecord, error)
}

// Submission is the grading input as prepared by the ingestion side. Content
// is the flattened text of all ingestible files; an ineligible submission
// arrives with IneligibleReason set and is skipped without dispatch.
type Submission struct {
	SubmissionID     string
	Content          string
	FileNames        []string
	IneligibleReason string
	MaxScore         float64
	CustomPrompt     string
}

// Config holds grading policy.
type Config struct {
	// MaxContentLength is the character cap above which a submission is
	// skipped instead of dispatched.
	MaxContentLength int
}

// Service runs the grading state machine.
type Service struct {
	dispatcher *broker.Dispatcher
	store      Store
	cfg        Config
	log        *slog.Logger
}

// NewService creates a grading service.
func NewService(d *broker.Dispatcher, s Store, cfg Config, log *slog.Logger) *Service {
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = 15000
	}
	return &Service{dispatcher: d, store: s, cfg: cfg, log: log}
}

// RequestGrading creates (or resumes) the grading record for a submission
// and dispatches the grading job. The returned record reflects the state
// after this call: skipped for ineligible input, processing after a deferred
// dispatch, or a terminal state when the request was served inline.
//
// Calling again for a submission already past pending is a no-op that
// returns the existing record.
func (s *Service) RequestGrading(ctx context.Context, sub Submission) (*models.GradingRecord, error) {
	if sub.SubmissionID == "" {
		return nil, fmt.Errorf("submission id is required")
	}

	rec, err := s.store.QueryCreateGradingRecord(ctx, sub.SubmissionID, sub.MaxScore)
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, gerr := s.store.QueryGetGradingRecord(ctx, sub.SubmissionID)
		if gerr != nil {
			return nil, fmt.Errorf("loading existing grading record: %w", gerr)
		}
		if existing == nil {
			return nil, fmt.Errorf("grading record for %s exists but could not be read", sub.SubmissionID)
		}
		if existing.Status != models.GradingPending {
			s.log.Info("grading already underway, not re-dispatching",
				"submission_id", sub.SubmissionID, "status", existing.Status)
			return existing, nil
		}
		rec = existing
	} else if err != nil {
		return nil, fmt.Errorf("creating grading record: %w", err)
	}

	if reason := s.skipReason(sub); reason != "" {
		if _, err := s.store.QuerySkipGrading(ctx, sub.SubmissionID, reason); err != nil {
			return nil, fmt.Errorf("skipping grading: %w", err)
		}
		s.log.Info("grading skipped", "submission_id", sub.SubmissionID, "reason", reason)
		return s.store.QueryGetGradingRecord(ctx, sub.SubmissionID)
	}

	disp, err := s.dispatcher.Dispatch(ctx, buildRequest(sub), "")
	if err != nil {
		reason := fmt.Sprintf("dispatch failed: %v", err)
		if _, ferr := s.store.QueryFailGrading(ctx, sub.SubmissionID, reason); ferr != nil {
			s.log.Error("failed to record dispatch failure",
				"submission_id", sub.SubmissionID, "error", ferr)
		}
		return s.store.QueryGetGradingRecord(ctx, sub.SubmissionID)
	}

	if disp.Deferred() {
		applied, err := s.store.QueryMarkGradingProcessing(ctx, sub.SubmissionID, disp.JobID)
		if err != nil {
			return nil, fmt.Errorf("marking grading processing: %w", err)
		}
		if !applied {
			s.log.Warn("grading record left pending, transition not applied",
				"submission_id", sub.SubmissionID, "job_id", disp.JobID)
		}
		return s.store.QueryGetGradingRecord(ctx, sub.SubmissionID)
	}

	// Inline dispatch path: the record must pass through processing so the
	// completion guard holds.
	if _, err := s.store.QueryMarkGradingProcessing(ctx, sub.SubmissionID, "inline"); err != nil {
		return nil, fmt.Errorf("marking grading processing: %w", err)
	}
	if err := s.ApplyResult(ctx, sub.SubmissionID, rec.MaxScore, *disp.Result); err != nil {
		return nil, err
	}
	return s.store.QueryGetGradingRecord(ctx, sub.SubmissionID)
}

// skipReason returns the reason a submission must not be dispatched, or ""
// when it is eligible.
func (s *Service) skipReason(sub Submission) string {
	if sub.IneligibleReason != "" {
		return sub.IneligibleReason
	}
	if len(sub.Content) > s.cfg.MaxContentLength {
		return fmt.Sprintf("submission content too long (%d > %d characters)",
			len(sub.Content), s.cfg.MaxContentLength)
	}
	return ""
}

// ApplyResult maps a completed inference result onto the grading record.
// Upstream failures and unparseable or invalid scores all land in failed;
// only a valid score plus comment completes the record. Guarded updates keep
// terminal records untouched when a stale result arrives late.
func (s *Service) ApplyResult(ctx context.Context, submissionID string, maxScore float64, res provider.Result) error {
	if !res.OK() {
		return s.fail(ctx, submissionID, fmt.Sprintf("inference failed: %s", res.Err))
	}

	grade := extract.ParseGrade(res.Content, maxScore)
	if grade == nil {
		return s.fail(ctx, submissionID, "no grade structure found in model output")
	}
	if grade.Score == nil {
		return s.fail(ctx, submissionID, "model returned a non-numeric score")
	}

	applied, err := s.store.QueryCompleteGrading(ctx, submissionID, *grade.Score, grade.Comment, grade.Similarity)
	if err != nil {
		return fmt.Errorf("completing grading for %s: %w", submissionID, err)
	}
	if !applied {
		s.log.Info("grading result discarded, record already terminal",
			"submission_id", submissionID)
		return nil
	}
	s.log.Info("grading completed",
		"submission_id", submissionID, "score", *grade.Score, "max_score", maxScore)
	return nil
}

func (s *Service) fail(ctx context.Context, submissionID, reason string) error {
	applied, err := s.store.QueryFailGrading(ctx, submissionID, reason)
	if err != nil {
		return fmt.Errorf("failing grading for %s: %w", submissionID, err)
	}
	if applied {
		s.log.Warn("grading failed", "submission_id", submissionID, "reason", reason)
	}
	return nil
}
