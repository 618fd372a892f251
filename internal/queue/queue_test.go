package queue

import (
	"context"
	"errors"
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

// --- test doubles ---

// immediateScheduler records each computed delay and fires the callback right
// away, so retry chains run without sleeping through real backoff.
type immediateScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *immediateScheduler) Schedule(delay time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	s.delays = append(s.delays, delay)
	s.mu.Unlock()
	go fn()
	return func() bool { return false }
}

func (s *immediateScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// manualScheduler never fires; it only counts schedules and cancels.
type manualScheduler struct {
	mu        sync.Mutex
	scheduled int
	cancelled int
}

func (s *manualScheduler) Schedule(_ time.Duration, _ func()) CancelFunc {
	s.mu.Lock()
	s.scheduled++
	s.mu.Unlock()
	return func() bool {
		s.mu.Lock()
		s.cancelled++
		s.mu.Unlock()
		return true
	}
}

func (s *manualScheduler) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled, s.cancelled
}

// failingStore wraps MemoryStore to inject errors per operation.
type failingStore struct {
	*store.MemoryStore
	createErr error
}

func (s *failingStore) CreateJob(ctx context.Context, job *models.Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	return s.MemoryStore.CreateJob(ctx, job)
}

func validRequest() models.ProcessRequest {
	return models.ProcessRequest{
		ThemeID:          "barbarian",
		OutputFormat:     "jpeg",
		OriginalImageURL: "u1",
	}
}

func waitForStatus(t *testing.T, st store.JobStore, id uuid.UUID, status string) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := st.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 2*time.Second, 5*time.Millisecond, "job never reached status %q", status)
	return job
}

// --- tests ---

func TestEnqueueCreatesQueuedJob(t *testing.T) {
	st := store.NewMemoryStore()
	blocked := make(chan struct{})
	processor := ProcessorFunc(func(ctx context.Context, job *models.Job) (string, error) {
		<-blocked
		return "r", nil
	})
	defer close(blocked)

	q, err := New(st, processor, Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}, nil)
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, "barbarian", job.ThemeID)
	assert.Nil(t, job.ResultURL)
	assert.Nil(t, job.ErrorMessage)

	stored, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
}

func TestEnqueueValidatesRequest(t *testing.T) {
	tests := []struct {
		name string
		req  models.ProcessRequest
	}{
		{"missing theme", models.ProcessRequest{OutputFormat: "jpeg", OriginalImageURL: "u1"}},
		{"missing format", models.ProcessRequest{ThemeID: "barbarian", OriginalImageURL: "u1"}},
		{"missing image url", models.ProcessRequest{ThemeID: "barbarian", OutputFormat: "jpeg"}},
	}

	st := store.NewMemoryStore()
	q, err := New(st, ProcessorFunc(func(context.Context, *models.Job) (string, error) { return "", nil }), Config{}, nil)
	require.NoError(t, err)
	defer q.Shutdown()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Enqueue(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, KindValidation, ErrorKind(err))
		})
	}
}

func TestEnqueuePropagatesStoreFailure(t *testing.T) {
	st := &failingStore{MemoryStore: store.NewMemoryStore(), createErr: errors.New("write refused")}
	q, err := New(st, ProcessorFunc(func(context.Context, *models.Job) (string, error) { return "", nil }), Config{}, nil)
	require.NoError(t, err)
	defer q.Shutdown()

	_, err = q.Enqueue(context.Background(), validRequest())
	require.ErrorContains(t, err, "write refused")
}

func TestJobCompletesOnFirstAttempt(t *testing.T) {
	st := store.NewMemoryStore()
	processor := ProcessorFunc(func(_ context.Context, job *models.Job) (string, error) {
		return "https://results.example.com/" + job.ID.String(), nil
	})

	q, err := New(st, processor, Config{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	final := waitForStatus(t, st, job.ID, models.JobStatusCompleted)
	assert.Equal(t, 0, final.RetryCount)
	require.NotNil(t, final.ResultURL)
	assert.Contains(t, *final.ResultURL, job.ID.String())
	assert.Nil(t, final.ErrorMessage)
	require.NotNil(t, final.CompletedAt)
}

func TestJobSucceedsAfterRetries(t *testing.T) {
	st := store.NewMemoryStore()
	sched := &immediateScheduler{}

	var attempts atomic.Int32
	processor := ProcessorFunc(func(context.Context, *models.Job) (string, error) {
		if attempts.Add(1) <= 2 {
			return "", errors.New("transient pipeline failure")
		}
		return "https://results.example.com/ok", nil
	})

	q, err := New(st, processor,
		Config{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second},
		nil, WithScheduler(sched))
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	final := waitForStatus(t, st, job.ID, models.JobStatusCompleted)
	assert.Equal(t, 2, final.RetryCount)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Nil(t, final.ErrorMessage)

	// Delay centers: 100ms then 200ms, each within ±25%.
	delays := sched.Delays()
	require.Len(t, delays, 2)
	assert.InDelta(t, 100, float64(delays[0].Milliseconds()), 25)
	assert.InDelta(t, 200, float64(delays[1].Milliseconds()), 50)
}

func TestJobFailsAfterMaxRetries(t *testing.T) {
	st := store.NewMemoryStore()
	sched := &immediateScheduler{}

	var attempts atomic.Int32
	processor := ProcessorFunc(func(context.Context, *models.Job) (string, error) {
		attempts.Add(1)
		return "", errors.New("pipeline keeps failing")
	})

	q, err := New(st, processor,
		Config{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond},
		nil, WithScheduler(sched))
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	final := waitForStatus(t, st, job.ID, models.JobStatusFailed)
	assert.Equal(t, 2, final.RetryCount, "retry count must never exceed the maximum")
	assert.Equal(t, int32(3), attempts.Load(), "initial attempt plus two retries")
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "giving up after 2 retries")
	assert.Contains(t, *final.ErrorMessage, "pipeline keeps failing")
	assert.Nil(t, final.ResultURL)

	// Terminal jobs have nothing scheduled; cancelling is a no-op.
	q.CancelRetry(job.ID)
	assert.Len(t, sched.Delays(), 2)
}

func TestPanicInProcessorIsFailure(t *testing.T) {
	st := store.NewMemoryStore()
	processor := ProcessorFunc(func(context.Context, *models.Job) (string, error) {
		panic("decode buffer overrun")
	})

	q, err := New(st, processor, Config{MaxRetries: 0, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	final := waitForStatus(t, st, job.ID, models.JobStatusFailed)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "panic in processor")
}

func TestResultAndErrorAreMutuallyExclusive(t *testing.T) {
	st := store.NewMemoryStore()
	sched := &immediateScheduler{}

	var attempts atomic.Int32
	processor := ProcessorFunc(func(context.Context, *models.Job) (string, error) {
		if attempts.Add(1) == 1 {
			return "", errors.New("first attempt fails")
		}
		return "https://results.example.com/ok", nil
	})

	q, err := New(st, processor, Config{MaxRetries: 1, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond},
		nil, WithScheduler(sched))
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	final := waitForStatus(t, st, job.ID, models.JobStatusCompleted)
	assert.NotNil(t, final.ResultURL)
	assert.Nil(t, final.ErrorMessage)
}

func TestDispatchSkipsAlreadyClaimedJob(t *testing.T) {
	st := store.NewMemoryStore()

	var attempts atomic.Int32
	release := make(chan struct{})
	processor := ProcessorFunc(func(context.Context, *models.Job) (string, error) {
		attempts.Add(1)
		<-release
		return "r", nil
	})

	q, err := New(st, processor, Config{MaxRetries: 0, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	waitForStatus(t, st, job.ID, models.JobStatusProcessing)

	// A second dispatch must lose the conditional claim and not run the
	// processor again.
	q.dispatch(job.ID)
	assert.Equal(t, int32(1), attempts.Load())

	close(release)
	waitForStatus(t, st, job.ID, models.JobStatusCompleted)
}

func TestShutdownCancelsPendingRetries(t *testing.T) {
	st := store.NewMemoryStore()
	sched := &manualScheduler{}

	processor := ProcessorFunc(func(context.Context, *models.Job) (string, error) {
		return "", errors.New("always fails")
	})

	q, err := New(st, processor, Config{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond},
		nil, WithScheduler(sched))
	require.NoError(t, err)

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	// First attempt fails and arms a retry timer that never fires.
	waitForStatus(t, st, job.ID, models.JobStatusQueued)
	require.Eventually(t, func() bool {
		scheduled, _ := sched.counts()
		return scheduled == 1
	}, 2*time.Second, 5*time.Millisecond)

	q.Shutdown()

	_, cancelled := sched.counts()
	assert.Equal(t, 1, cancelled)

	_, err = q.Enqueue(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestCancelRetryIsIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	sched := &manualScheduler{}

	processor := ProcessorFunc(func(context.Context, *models.Job) (string, error) {
		return "", errors.New("always fails")
	})

	q, err := New(st, processor, Config{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond},
		nil, WithScheduler(sched))
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	waitForStatus(t, st, job.ID, models.JobStatusQueued)
	require.Eventually(t, func() bool {
		scheduled, _ := sched.counts()
		return scheduled == 1
	}, 2*time.Second, 5*time.Millisecond)

	q.CancelRetry(job.ID)
	q.CancelRetry(job.ID)
	q.CancelRetry(uuid.New())

	_, cancelled := sched.counts()
	assert.Equal(t, 1, cancelled)
}

func TestGetStatusAndQueueStats(t *testing.T) {
	st := store.NewMemoryStore()
	blocked := make(chan struct{})
	processor := ProcessorFunc(func(context.Context, *models.Job) (string, error) {
		<-blocked
		return "r", nil
	})
	defer close(blocked)

	q, err := New(st, processor, Config{MaxRetries: 0, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer q.Shutdown()

	job, err := q.Enqueue(context.Background(), validRequest())
	require.NoError(t, err)

	got, err := q.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)

	_, err = q.GetStatus(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	waitForStatus(t, st, job.ID, models.JobStatusProcessing)

	stats, err := q.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.JobStatusProcessing])
	assert.Equal(t, 0, stats[models.JobStatusCompleted])
}
