// Package queue drives styling jobs from enqueue through attempt, bounded
// retry with exponential backoff, and terminal completion or failure.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arvindpillai/photoforge/internal/cache"
	"github.com/arvindpillai/photoforge/internal/metrics"
	"github.com/arvindpillai/photoforge/internal/store"
	"github.com/arvindpillai/photoforge/pkg/models"
)

const statusCacheTTL = 30 * time.Minute

// Processor runs the styling pipeline for one job and returns the stored
// result URL. It is treated as an opaque, possibly slow, possibly failing
// black box; any error it returns is retryable up to the configured limit.
type Processor interface {
	Process(ctx context.Context, job *models.Job) (resultURL string, err error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, job *models.Job) (string, error)

func (f ProcessorFunc) Process(ctx context.Context, job *models.Job) (string, error) {
	return f(ctx, job)
}

type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = time.Minute
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("max delay %s must be >= base delay %s", c.MaxDelay, c.BaseDelay)
	}
	return nil
}

// Queue accepts styling requests and tracks their lifecycle in the job store.
// Attempts for one job are strictly sequential: a retry is only ever armed
// from the completion path of the previous attempt, and the store's
// conditional claim rejects a second dispatch while one is in flight.
type Queue struct {
	store     store.JobStore
	processor Processor
	cache     cache.Cache // optional
	cfg       Config
	sched     Scheduler
	logger    *slog.Logger

	mu          sync.Mutex
	retryTimers map[uuid.UUID]CancelFunc
	closed      bool
}

// Option configures optional queue collaborators.
type Option func(*Queue)

// WithCache mirrors status transitions into the cache for cheap polling.
func WithCache(c cache.Cache) Option {
	return func(q *Queue) { q.cache = c }
}

// WithScheduler replaces the runtime-timer retry scheduler.
func WithScheduler(s Scheduler) Option {
	return func(q *Queue) { q.sched = s }
}

func New(st store.JobStore, processor Processor, cfg Config, logger *slog.Logger, opts ...Option) (*Queue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		store:       st,
		processor:   processor,
		cfg:         cfg,
		sched:       TimerScheduler{},
		logger:      logger,
		retryTimers: make(map[uuid.UUID]CancelFunc),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue validates the request, durably creates a queued job, and kicks off
// the first attempt in the background. The created job is returned
// immediately; a store write failure is propagated and nothing is scheduled.
func (q *Queue) Enqueue(ctx context.Context, req models.ProcessRequest) (*models.Job, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.mu.Unlock()

	now := time.Now().UTC()
	job := &models.Job{
		ID:               uuid.New(),
		ThemeID:          req.ThemeID,
		VariantID:        req.VariantID,
		OutputFormat:     req.OutputFormat,
		OriginalImageURL: req.OriginalImageURL,
		UserID:           req.UserID,
		Status:           models.JobStatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	q.setCachedStatus(job.ID, models.JobStatusQueued)
	metrics.JobsEnqueued.Inc()

	go q.dispatch(job.ID)

	return job, nil
}

// GetStatus is a read-through to the job store.
func (q *Queue) GetStatus(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return q.store.GetJob(ctx, id)
}

// GetQueueStats returns job counts per status.
func (q *Queue) GetQueueStats(ctx context.Context) (map[string]int, error) {
	counts, err := q.store.CountJobsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	metrics.SetQueueDepth(counts)
	return counts, nil
}

// CancelRetry aborts a pending retry timer for the job. No-op when nothing is
// scheduled.
func (q *Queue) CancelRetry(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cancel, ok := q.retryTimers[id]; ok {
		cancel()
		delete(q.retryTimers, id)
	}
}

// Shutdown cancels every pending retry timer and rejects further enqueues.
// Attempts already in flight are left alone; if they never report back the
// reaper reclaims them.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	for id, cancel := range q.retryTimers {
		cancel()
		delete(q.retryTimers, id)
	}
}

// dispatch runs one attempt. It is called from Enqueue and from retry timers;
// no other path exists, which keeps per-job attempts sequential.
func (q *Queue) dispatch(id uuid.UUID) {
	ctx := context.Background()

	claimed, err := q.store.ClaimQueued(ctx, id)
	if err != nil {
		q.logger.Error("claiming job failed", "job_id", id, "error", err)
		return
	}
	if !claimed {
		// Another attempt is already in flight, or the job went terminal.
		q.logger.Debug("job not claimable", "job_id", id)
		return
	}
	q.setCachedStatus(id, models.JobStatusProcessing)

	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		q.logger.Error("loading claimed job failed", "job_id", id, "error", err)
		return
	}

	start := time.Now()
	resultURL, procErr := q.runProcessor(ctx, job)
	elapsed := time.Since(start).Milliseconds()

	if procErr != nil {
		q.handleFailure(ctx, job.ID, procErr, elapsed)
		return
	}

	err = q.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCompleted,
		store.WithResultURL(resultURL),
		store.WithProcessingMs(elapsed),
		store.WithCompletedAt(time.Now().UTC()))
	if err != nil {
		// The job stays in processing until the reaper reclaims it.
		q.logger.Error("marking job completed failed", "job_id", job.ID, "error", err)
		return
	}

	q.setCachedStatus(job.ID, models.JobStatusCompleted)
	if q.cache != nil {
		_ = q.cache.SetJobResult(ctx, job.ID, resultURL, statusCacheTTL)
	}
	metrics.JobsCompleted.Inc()
	q.logger.Info("job completed", "job_id", job.ID, "duration_ms", elapsed, "retry_count", job.RetryCount)
}

// runProcessor invokes the pipeline, converting a panic into an ordinary
// failure so one crashing job never takes the queue down.
func (q *Queue) runProcessor(ctx context.Context, job *models.Job) (resultURL string, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic in processor", "job_id", job.ID, "panic", r)
			err = fmt.Errorf("panic in processor: %v", r)
		}
	}()
	return q.processor.Process(ctx, job)
}

// handleFailure retries the job with backoff until the retry budget is spent,
// then marks it terminally failed.
func (q *Queue) handleFailure(ctx context.Context, id uuid.UUID, procErr error, elapsed int64) {
	job, err := q.store.GetJob(ctx, id)
	if err != nil {
		q.logger.Error("loading failed job", "job_id", id, "error", err)
		return
	}

	if job.RetryCount >= q.cfg.MaxRetries {
		qErr := &Error{
			Kind: KindRetriesExhausted,
			Msg:  fmt.Sprintf("giving up after %d retries", job.RetryCount),
			Err:  procErr,
		}
		err := q.store.UpdateJobStatus(ctx, id, models.JobStatusFailed,
			store.WithErrorMessage(qErr.Error()),
			store.WithProcessingMs(elapsed),
			store.WithCompletedAt(time.Now().UTC()))
		if err != nil {
			q.logger.Error("marking job failed", "job_id", id, "error", err)
			return
		}
		q.setCachedStatus(id, models.JobStatusFailed)
		metrics.JobsFailed.Inc()
		q.logger.Warn("job failed permanently", "job_id", id, "retry_count", job.RetryCount, "error", procErr)
		return
	}

	newCount, err := q.store.IncrementRetryCount(ctx, id)
	if err != nil {
		q.logger.Error("incrementing retry count", "job_id", id, "error", err)
		return
	}

	if err := q.store.UpdateJobStatus(ctx, id, models.JobStatusQueued); err != nil {
		q.logger.Error("requeueing job", "job_id", id, "error", err)
		return
	}
	q.setCachedStatus(id, models.JobStatusQueued)

	delay := backoffDelay(q.cfg.BaseDelay, q.cfg.MaxDelay, newCount)
	metrics.JobRetries.Inc()
	q.logger.Info("job attempt failed, retrying", "job_id", id, "retry_count", newCount, "delay", delay, "error", procErr)
	q.scheduleRetry(id, delay)
}

func (q *Queue) scheduleRetry(id uuid.UUID, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.retryTimers[id] = q.sched.Schedule(delay, func() {
		q.mu.Lock()
		delete(q.retryTimers, id)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		q.dispatch(id)
	})
}

func (q *Queue) setCachedStatus(id uuid.UUID, status string) {
	if q.cache == nil {
		return
	}
	_ = q.cache.SetJobStatus(context.Background(), id, status, statusCacheTTL)
}

func validateRequest(req models.ProcessRequest) error {
	switch {
	case req.ThemeID == "":
		return &Error{Kind: KindValidation, Msg: "theme_id is required"}
	case req.OutputFormat == "":
		return &Error{Kind: KindValidation, Msg: "output_format is required"}
	case req.OriginalImageURL == "":
		return &Error{Kind: KindValidation, Msg: "original_image_url is required"}
	}
	return nil
}
