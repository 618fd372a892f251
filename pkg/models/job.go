package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Statuses lists every job status, in lifecycle order.
var Statuses = []string{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

// IsTerminal reports whether status is a final state.
func IsTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Job tracks one styling request through the async pipeline. The API returns a
// job id on POST /api/v1/jobs; the client polls GET /api/v1/jobs/{id} until
// status is completed or failed.
type Job struct {
	ID               uuid.UUID  `db:"id"                 json:"id"`
	ThemeID          string     `db:"theme_id"           json:"theme_id"`
	VariantID        *string    `db:"variant_id"         json:"variant_id,omitempty"`
	OutputFormat     string     `db:"output_format"      json:"output_format"`
	OriginalImageURL string     `db:"original_image_url" json:"original_image_url"`
	UserID           *string    `db:"user_id"            json:"user_id,omitempty"`
	Status           string     `db:"status"             json:"status"`
	RetryCount       int        `db:"retry_count"        json:"retry_count"`
	ResultURL        *string    `db:"result_url"         json:"result_url,omitempty"`
	ErrorMessage     *string    `db:"error_message"      json:"error_message,omitempty"`
	ProcessingMs     int64      `db:"processing_ms"      json:"processing_ms"`
	CreatedAt        time.Time  `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"         json:"updated_at"`
	CompletedAt      *time.Time `db:"completed_at"       json:"completed_at,omitempty"`
}

// ProcessRequest is the validated payload for a new styling job.
type ProcessRequest struct {
	ThemeID          string  `json:"theme_id"`
	VariantID        *string `json:"variant_id,omitempty"`
	OutputFormat     string  `json:"output_format"`
	OriginalImageURL string  `json:"original_image_url"`
	UserID           *string `json:"user_id,omitempty"`
}
