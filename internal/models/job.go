// Package models defines persisted data structures for the inference broker.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Job statuses as stored in the job table.
const (
	JobQueued  = "queued"
	JobClaimed = "claimed"
	JobDone    = "done"
	JobDead    = "dead"
)

// Job is a persisted unit of deferred work. The record id is the opaque job
// id handed back to the dispatching caller.
type Job struct {
	ID        surrealmodels.RecordID `json:"id"`
	Queue     string                 `json:"queue"`
	Payload   string                 `json:"payload"`
	Status    string                 `json:"status"`
	Attempts  int                    `json:"attempts"`
	CreatedAt time.Time              `json:"created_at"`
	ClaimedAt *time.Time             `json:"claimed_at,omitempty"`
}

// Outcome is the terminal result persisted for a job id. Written (and on
// redelivery, overwritten with an equivalent value) by the task worker; read
// many times by the status poller.
type Outcome struct {
	ID          surrealmodels.RecordID `json:"id"`
	Content     *string                `json:"content,omitempty"`
	Error       *string                `json:"error,omitempty"`
	Provider    *string                `json:"provider_name,omitempty"`
	Model       *string                `json:"model_used,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Failed reports whether the outcome carries an error instead of content.
func (o Outcome) Failed() bool {
	return o.Error != nil && *o.Error != ""
}
