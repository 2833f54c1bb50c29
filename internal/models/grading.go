package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// GradingStatus is the lifecycle state of a grading record.
type GradingStatus string

const (
	GradingPending    GradingStatus = "pending"
	GradingProcessing GradingStatus = "processing"
	GradingCompleted  GradingStatus = "completed"
	GradingFailed     GradingStatus = "failed"
	GradingSkipped    GradingStatus = "skipped"
)

// Terminal reports whether the status can never be left again.
func (s GradingStatus) Terminal() bool {
	switch s {
	case GradingCompleted, GradingFailed, GradingSkipped:
		return true
	}
	return false
}

// GradingRecord tracks one submission's deferred grading from request to
// terminal outcome. The record id is the submission id.
type GradingRecord struct {
	ID         surrealmodels.RecordID `json:"id"`
	Status     GradingStatus          `json:"status"`
	MaxScore   float64                `json:"max_score"`
	Score      *float64               `json:"score,omitempty"`
	Comment    *string                `json:"comment,omitempty"`
	Similarity *float64               `json:"similarity,omitempty"`
	JobID      *string                `json:"job_id,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}
