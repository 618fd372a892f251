package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arvindpillai/photoforge/internal/api/response"
	"github.com/arvindpillai/photoforge/internal/cache"
	"github.com/arvindpillai/photoforge/internal/queue"
	"github.com/arvindpillai/photoforge/internal/store"
	"github.com/arvindpillai/photoforge/pkg/models"
)

// JobQueue is the queue surface the handlers depend on.
type JobQueue interface {
	Enqueue(ctx context.Context, req models.ProcessRequest) (*models.Job, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetQueueStats(ctx context.Context) (map[string]int, error)
}

// NewSubmitJobHandler returns the handler for POST /api/v1/jobs.
func NewSubmitJobHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ProcessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		job, err := q.Enqueue(r.Context(), req)
		if err != nil {
			switch {
			case queue.ErrorKind(err) == queue.KindValidation:
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			case errors.Is(err, queue.ErrQueueClosed):
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "The queue is shutting down", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "ENQUEUE_FAILED", "Could not create job", nil)
			}
			return
		}

		response.Accepted(w, job)
	}
}

// NewPollJobHandler returns the handler for GET /api/v1/jobs/{jobID}. When a
// cache is configured, non-terminal polls are served from it without touching
// the store.
func NewPollJobHandler(q JobQueue, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		if c != nil {
			status, ok, cerr := c.GetJobStatus(r.Context(), id)
			if cerr == nil && ok && !models.IsTerminal(status) {
				response.JSON(w, map[string]any{"id": id, "status": status})
				return
			}
		}

		job, err := q.GetStatus(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No job with that id", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not load job", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewQueueStatsHandler returns the handler for GET /api/v1/queue/stats.
func NewQueueStatsHandler(q JobQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := q.GetQueueStats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not compute queue stats", nil)
			return
		}
		response.JSON(w, counts)
	}
}
