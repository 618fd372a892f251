package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvindpillai/photoforge/internal/store"
	"github.com/arvindpillai/photoforge/pkg/models"
)

func newJob(status string) *models.Job {
	now := time.Now().UTC()
	return &models.Job{
		ID:               uuid.New(),
		ThemeID:          "barbarian",
		OutputFormat:     "jpeg",
		OriginalImageURL: "https://uploads.example.com/u1.jpg",
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	job := newJob(models.JobStatusQueued)
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, models.JobStatusQueued, got.Status)

	// The store hands out copies, not aliases.
	got.Status = models.JobStatusFailed
	again, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, again.Status)

	_, err = s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStoreUpdateJobStatus(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	job := newJob(models.JobStatusProcessing)
	require.NoError(t, s.CreateJob(ctx, job))

	done := time.Now().UTC()
	err := s.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted,
		store.WithResultURL("https://results.example.com/r.jpg"),
		store.WithProcessingMs(1234),
		store.WithCompletedAt(done))
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.ResultURL)
	assert.Equal(t, "https://results.example.com/r.jpg", *got.ResultURL)
	assert.Equal(t, int64(1234), got.ProcessingMs)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
	assert.Nil(t, got.ErrorMessage)

	err = s.UpdateJobStatus(ctx, uuid.New(), models.JobStatusFailed)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStoreClaimQueued(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	job := newJob(models.JobStatusQueued)
	require.NoError(t, s.CreateJob(ctx, job))

	claimed, err := s.ClaimQueued(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)

	claimed, err = s.ClaimQueued(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, claimed, "a processing job must not be claimable")

	_, err = s.ClaimQueued(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryStoreClaimQueuedRace(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	job := newJob(models.JobStatusQueued)
	require.NoError(t, s.CreateJob(ctx, job))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimQueued(ctx, job.ID)
			if err == nil && claimed {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one concurrent claim may win")
}

func TestMemoryStoreIncrementRetryCountConcurrently(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	job := newJob(models.JobStatusQueued)
	require.NoError(t, s.CreateJob(ctx, job))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementRetryCount(ctx, job.ID)
		}()
	}
	wg.Wait()

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.RetryCount, "no increments may be lost")
}

func TestMemoryStoreListJobsByStatus(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	oldest := newJob(models.JobStatusQueued)
	oldest.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newest := newJob(models.JobStatusQueued)
	other := newJob(models.JobStatusCompleted)

	require.NoError(t, s.CreateJob(ctx, newest))
	require.NoError(t, s.CreateJob(ctx, oldest))
	require.NoError(t, s.CreateJob(ctx, other))

	jobs, err := s.ListJobsByStatus(ctx, models.JobStatusQueued, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, oldest.ID, jobs[0].ID, "oldest first")
	assert.Equal(t, newest.ID, jobs[1].ID)

	jobs, err = s.ListJobsByStatus(ctx, models.JobStatusQueued, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, oldest.ID, jobs[0].ID)
}

func TestMemoryStoreCountJobsByStatus(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, newJob(models.JobStatusQueued)))
	require.NoError(t, s.CreateJob(ctx, newJob(models.JobStatusQueued)))
	require.NoError(t, s.CreateJob(ctx, newJob(models.JobStatusFailed)))

	counts, err := s.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.JobStatusQueued])
	assert.Equal(t, 0, counts[models.JobStatusProcessing])
	assert.Equal(t, 0, counts[models.JobStatusCompleted])
	assert.Equal(t, 1, counts[models.JobStatusFailed])
}

func TestMemoryStoreDeleteJob(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	job := newJob(models.JobStatusCompleted)
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.DeleteJob(ctx, job.ID))

	_, err := s.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.DeleteJob(ctx, job.ID), store.ErrNotFound)
}
