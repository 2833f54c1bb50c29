package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mlenz-dev/aibroker/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// ---------------------------------------------------------------------------
// Job queue rows
// ---------------------------------------------------------------------------

// QueryCreateJob persists a newly enqueued job.
func (c *Client) QueryCreateJob(ctx context.Context, id, queueName, payload string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("job", $id) SET
			queue = $queue,
			payload = $payload,
			status = 'queued',
			attempts = 0,
			created_at = time::now()
	`, map[string]any{"id": id, "queue": queueName, "payload": payload})
	if err != nil {
		return fmt.Errorf("create job: %w", wrapQueryError(err))
	}
	return nil
}

// QueryGetJob retrieves a job by ID. Returns nil if not found.
func (c *Client) QueryGetJob(ctx context.Context, id string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		SELECT * FROM type::record("job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryMarkJobClaimed marks a job as claimed by a worker.
func (c *Client) QueryMarkJobClaimed(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("job", $id) SET
			status = 'claimed',
			claimed_at = time::now()
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark job claimed: %w", err)
	}
	return nil
}

// QueryMarkJobDone marks a job as fully processed.
func (c *Client) QueryMarkJobDone(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("job", $id) SET status = 'done'
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// QueryRequeueJob bumps the attempt counter and returns the job to queued
// state for redelivery.
func (c *Client) QueryRequeueJob(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("job", $id) SET
			status = 'queued',
			attempts += 1,
			claimed_at = NONE
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// QueryMarkJobDead parks a job that exhausted its redeliveries.
func (c *Client) QueryMarkJobDead(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("job", $id) SET status = 'dead'
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark job dead: %w", err)
	}
	return nil
}

// QueryIncompleteJobs returns jobs that were queued or claimed when the
// process last stopped, oldest first. Used to resume the queues at startup.
func (c *Client) QueryIncompleteJobs(ctx context.Context) ([]models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		SELECT * FROM job
		WHERE status IN ['queued', 'claimed']
		ORDER BY created_at ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("incomplete jobs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Job{}, nil
	}
	return (*results)[0].Result, nil
}

// ---------------------------------------------------------------------------
// Job outcomes
// ---------------------------------------------------------------------------

// QueryUpsertOutcome writes the terminal result for a job id. Idempotent:
// a redelivered job overwrites its outcome with an equivalent value.
func (c *Client) QueryUpsertOutcome(ctx context.Context, id string, content, errMsg, providerName, model *string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("outcome", $id) SET
			content = $content,
			error = $error,
			provider_name = $provider,
			model_used = $model,
			completed_at = time::now()
	`, map[string]any{
		"id":       id,
		"content":  content,
		"error":    errMsg,
		"provider": providerName,
		"model":    model,
	})
	if err != nil {
		return fmt.Errorf("upsert outcome: %w", wrapQueryError(err))
	}
	return nil
}

// QueryGetOutcome retrieves the outcome for a job id. Returns nil if the job
// has not completed (or the outcome has been expired).
func (c *Client) QueryGetOutcome(ctx context.Context, id string) (*models.Outcome, error) {
	results, err := surrealdb.Query[[]models.Outcome](ctx, c.db, `
		SELECT * FROM type::record("outcome", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ---------------------------------------------------------------------------
// Grading records
// ---------------------------------------------------------------------------

// QueryCreateGradingRecord creates a pending grading record for a submission.
func (c *Client) QueryCreateGradingRecord(ctx context.Context, submissionID string, maxScore float64) (*models.GradingRecord, error) {
	results, err := surrealdb.Query[[]models.GradingRecord](ctx, c.db, `
		CREATE type::record("grading", $id) SET
			status = 'pending',
			max_score = $max_score,
			updated_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": submissionID, "max_score": maxScore})
	if err != nil {
		return nil, fmt.Errorf("create grading record: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create grading record: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// QueryGetGradingRecord retrieves a grading record. Returns nil if not found.
func (c *Client) QueryGetGradingRecord(ctx context.Context, submissionID string) (*models.GradingRecord, error) {
	results, err := surrealdb.Query[[]models.GradingRecord](ctx, c.db, `
		SELECT * FROM type::record("grading", $id)
	`, map[string]any{"id": submissionID})
	if err != nil {
		return nil, fmt.Errorf("get grading record: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryMarkGradingProcessing moves a pending record to processing and
// attaches the dispatched job id. The status guard makes the transition a
// compare-and-set: a record already past pending is left untouched.
func (c *Client) QueryMarkGradingProcessing(ctx context.Context, submissionID, jobID string) (bool, error) {
	return c.conditionalGradingUpdate(ctx, `
		UPDATE type::record("grading", $id) SET
			status = 'processing',
			job_id = $job_id,
			updated_at = time::now()
		WHERE status = 'pending'
		RETURN AFTER
	`, map[string]any{"id": submissionID, "job_id": jobID})
}

// QueryCompleteGrading records the extracted score/comment. Only a record
// still in processing can complete; terminal states are never overwritten.
func (c *Client) QueryCompleteGrading(ctx context.Context, submissionID string, score float64, comment string, similarity *float64) (bool, error) {
	return c.conditionalGradingUpdate(ctx, `
		UPDATE type::record("grading", $id) SET
			status = 'completed',
			score = $score,
			comment = $comment,
			similarity = $similarity,
			updated_at = time::now()
		WHERE status = 'processing'
		RETURN AFTER
	`, map[string]any{
		"id":         submissionID,
		"score":      score,
		"comment":    comment,
		"similarity": similarity,
	})
}

// QueryFailGrading marks a non-terminal record as failed with a reason.
func (c *Client) QueryFailGrading(ctx context.Context, submissionID, reason string) (bool, error) {
	return c.conditionalGradingUpdate(ctx, `
		UPDATE type::record("grading", $id) SET
			status = 'failed',
			comment = $reason,
			updated_at = time::now()
		WHERE status IN ['pending', 'processing']
		RETURN AFTER
	`, map[string]any{"id": submissionID, "reason": reason})
}

// QuerySkipGrading marks a pending record as skipped (ineligible input,
// never dispatched).
func (c *Client) QuerySkipGrading(ctx context.Context, submissionID, reason string) (bool, error) {
	return c.conditionalGradingUpdate(ctx, `
		UPDATE type::record("grading", $id) SET
			status = 'skipped',
			comment = $reason,
			updated_at = time::now()
		WHERE status = 'pending'
		RETURN AFTER
	`, map[string]any{"id": submissionID, "reason": reason})
}

// QueryProcessingGradingRecords returns all records currently in processing.
func (c *Client) QueryProcessingGradingRecords(ctx context.Context) ([]models.GradingRecord, error) {
	results, err := surrealdb.Query[[]models.GradingRecord](ctx, c.db, `
		SELECT * FROM grading WHERE status = 'processing'
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("processing grading records: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.GradingRecord{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryFailStaleGrading forces records stuck in processing since before the
// cutoff into failed. Returns the number of records swept. The WHERE clause
// serializes against a concurrently arriving poll result: whichever update
// lands first wins, the other matches zero rows.
func (c *Client) QueryFailStaleGrading(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	results, err := surrealdb.Query[[]models.GradingRecord](ctx, c.db, `
		UPDATE grading SET
			status = 'failed',
			comment = $reason,
			updated_at = time::now()
		WHERE status = 'processing' AND updated_at < type::datetime($cutoff)
		RETURN AFTER
	`, map[string]any{"cutoff": cutoff.UTC().Format(time.RFC3339Nano), "reason": reason})
	if err != nil {
		return 0, fmt.Errorf("fail stale grading: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// conditionalGradingUpdate runs a guarded grading UPDATE and reports whether
// a row actually transitioned.
func (c *Client) conditionalGradingUpdate(ctx context.Context, sql string, vars map[string]any) (bool, error) {
	results, err := surrealdb.Query[[]models.GradingRecord](ctx, c.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("grading update: %w", wrapQueryError(err))
	}

	return results != nil && len(*results) > 0 && len((*results)[0].Result) > 0, nil
}
