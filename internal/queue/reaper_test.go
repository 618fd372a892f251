package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvindpillai/photoforge/internal/store"
	"github.com/arvindpillai/photoforge/pkg/models"
)

func seedJob(t *testing.T, st *store.MemoryStore, status string, age time.Duration) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	job := &models.Job{
		ID:               uuid.New(),
		ThemeID:          "barbarian",
		OutputFormat:     "jpeg",
		OriginalImageURL: "u1",
		Status:           status,
		CreatedAt:        now.Add(-age),
		UpdatedAt:        now.Add(-age),
	}
	require.NoError(t, st.CreateJob(context.Background(), job))
	return job.ID
}

func TestSweepReclaimsStuckJobs(t *testing.T) {
	st := store.NewMemoryStore()
	stuck := seedJob(t, st, models.JobStatusProcessing, 45*time.Minute)
	recent := seedJob(t, st, models.JobStatusProcessing, 10*time.Minute)
	queued := seedJob(t, st, models.JobStatusQueued, 2*time.Hour)

	r := NewReaper(st, 30*time.Minute, time.Minute, nil)
	require.NoError(t, r.Sweep(context.Background()))

	stuckJob, err := st.GetJob(context.Background(), stuck)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stuckJob.Status)
	require.NotNil(t, stuckJob.ErrorMessage)
	assert.Contains(t, *stuckJob.ErrorMessage, "reclaimed by reaper")
	require.NotNil(t, stuckJob.CompletedAt)

	recentJob, err := st.GetJob(context.Background(), recent)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, recentJob.Status)

	// Old but not in processing: none of the reaper's business.
	queuedJob, err := st.GetJob(context.Background(), queued)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, queuedJob.Status)
}

func TestSweepMessageIsDistinguishable(t *testing.T) {
	st := store.NewMemoryStore()
	stuck := seedJob(t, st, models.JobStatusProcessing, time.Hour)

	r := NewReaper(st, 30*time.Minute, time.Minute, nil)
	require.NoError(t, r.Sweep(context.Background()))

	job, err := st.GetJob(context.Background(), stuck)
	require.NoError(t, err)
	require.NotNil(t, job.ErrorMessage)
	assert.NotContains(t, *job.ErrorMessage, "giving up after",
		"reaper timeouts must not read like exhausted retries")
}

// updateFailStore fails status updates for one job id.
type updateFailStore struct {
	*store.MemoryStore
	failID uuid.UUID
}

func (s *updateFailStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	if id == s.failID {
		return assert.AnError
	}
	return s.MemoryStore.UpdateJobStatus(ctx, id, status, opts...)
}

func TestSweepToleratesPerJobFailures(t *testing.T) {
	mem := store.NewMemoryStore()
	bad := seedJob(t, mem, models.JobStatusProcessing, time.Hour)
	good := seedJob(t, mem, models.JobStatusProcessing, 2*time.Hour)

	r := NewReaper(&updateFailStore{MemoryStore: mem, failID: bad}, 30*time.Minute, time.Minute, nil)
	require.NoError(t, r.Sweep(context.Background()))

	goodJob, err := mem.GetJob(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, goodJob.Status, "sweep must continue past a failing job")
}

func TestRunSweepsOnInterval(t *testing.T) {
	st := store.NewMemoryStore()
	stuck := seedJob(t, st, models.JobStatusProcessing, time.Hour)

	r := NewReaper(st, 30*time.Minute, 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		job, err := st.GetJob(context.Background(), stuck)
		return err == nil && job.Status == models.JobStatusFailed
	}, 2*time.Second, 5*time.Millisecond)
}
