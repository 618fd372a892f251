package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arvindpillai/photoforge/internal/metrics"
	"github.com/arvindpillai/photoforge/internal/store"
	"github.com/arvindpillai/photoforge/pkg/models"
)

const reaperBatchSize = 200

// Reaper reclaims jobs wedged in processing. An attempt that crashed the host
// process never reaches the queue's failure handler, so without the reaper
// the job would sit in processing forever.
type Reaper struct {
	store     store.JobStore
	logger    *slog.Logger
	threshold time.Duration
	interval  time.Duration
}

func NewReaper(st store.JobStore, threshold, interval time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:     st,
		logger:    logger,
		threshold: threshold,
		interval:  interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper shutting down")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("reaper sweep failed", "error", err)
			}
		}
	}
}

// Sweep forces every job stuck in processing past the threshold to failed
// with a timeout message distinguishable from a processor-reported error.
// A failure on one job is logged and does not stop the sweep.
func (r *Reaper) Sweep(ctx context.Context) error {
	jobs, err := r.store.ListJobsByStatus(ctx, models.JobStatusProcessing, reaperBatchSize)
	if err != nil {
		return fmt.Errorf("listing processing jobs: %w", err)
	}

	cutoff := time.Now().UTC().Add(-r.threshold)
	for _, job := range jobs {
		if job.UpdatedAt.After(cutoff) {
			continue
		}

		stuckErr := &Error{
			Kind: KindStuckTimeout,
			Msg:  fmt.Sprintf("attempt made no progress for over %s; reclaimed by reaper", r.threshold),
		}
		err := r.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed,
			store.WithErrorMessage(stuckErr.Error()),
			store.WithCompletedAt(time.Now().UTC()))
		if err != nil {
			r.logger.Error("reclaiming stuck job failed", "job_id", job.ID, "error", err)
			continue
		}

		metrics.JobsReaped.Inc()
		r.logger.Warn("reclaimed stuck job", "job_id", job.ID, "stuck_since", job.UpdatedAt)
	}
	return nil
}
