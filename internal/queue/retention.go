package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arvindpillai/photoforge/internal/store"
	"github.com/arvindpillai/photoforge/pkg/models"
)

const retentionBatchSize = 500

// RetentionJanitor deletes terminal jobs older than the retention window on a
// cron schedule.
type RetentionJanitor struct {
	store    store.JobStore
	logger   *slog.Logger
	window   time.Duration
	schedule string
	cron     *cron.Cron
}

func NewRetentionJanitor(st store.JobStore, window time.Duration, schedule string, logger *slog.Logger) *RetentionJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = "@daily"
	}
	return &RetentionJanitor{
		store:    st,
		logger:   logger,
		window:   window,
		schedule: schedule,
		cron:     cron.New(),
	}
}

func (j *RetentionJanitor) Start() error {
	_, err := j.cron.AddFunc(j.schedule, func() {
		if err := j.Sweep(context.Background()); err != nil {
			j.logger.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling retention sweep: %w", err)
	}
	j.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (j *RetentionJanitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep deletes completed and failed jobs whose terminal timestamp is older
// than the retention window. Per-job delete failures are logged and skipped.
func (j *RetentionJanitor) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.window)
	deleted := 0

	for _, status := range []string{models.JobStatusCompleted, models.JobStatusFailed} {
		jobs, err := j.store.ListJobsByStatus(ctx, status, retentionBatchSize)
		if err != nil {
			return fmt.Errorf("listing %s jobs: %w", status, err)
		}
		for _, job := range jobs {
			if job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
				continue
			}
			if err := j.store.DeleteJob(ctx, job.ID); err != nil {
				j.logger.Error("deleting expired job failed", "job_id", job.ID, "error", err)
				continue
			}
			deleted++
		}
	}

	if deleted > 0 {
		j.logger.Info("retention sweep finished", "deleted", deleted, "window", j.window)
	}
	return nil
}
