package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arvindpillai/photoforge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// JobStore is the durable record of job state. It is the single source of
// truth: the queue never caches job state across suspension points.
// Implementations must be safe for concurrent use and must implement
// ClaimQueued and IncrementRetryCount atomically.
type JobStore interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	// ClaimQueued transitions the job from queued to processing. It returns
	// false (and no error) when the job is not currently queued, so two
	// dispatches racing for the same job cannot both win.
	ClaimQueued(ctx context.Context, id uuid.UUID) (bool, error)

	// IncrementRetryCount atomically bumps the retry counter and returns the
	// new value.
	IncrementRetryCount(ctx context.Context, id uuid.UUID) (int, error)

	ListJobsByStatus(ctx context.Context, status string, limit int) ([]*models.Job, error)
	CountJobsByStatus(ctx context.Context) (map[string]int, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

type jobUpdateParams struct {
	ResultURL    *string
	ErrorMessage *string
	ProcessingMs *int64
	CompletedAt  *time.Time
}

type JobUpdateOption func(*jobUpdateParams)

func WithResultURL(url string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ResultURL = &url
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithProcessingMs(ms int64) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ProcessingMs = &ms
	}
}

func WithCompletedAt(t time.Time) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.CompletedAt = &t
	}
}
