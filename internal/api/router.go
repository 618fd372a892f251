package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/arvindpillai/photoforge/internal/api/middleware"
	"github.com/arvindpillai/photoforge/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler     http.HandlerFunc
	SubmitJobHandler  http.HandlerFunc
	PollJobHandler    http.HandlerFunc
	QueueStatsHandler http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitJobHandler))
	r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.PollJobHandler))
	r.Get("/api/v1/queue/stats", orNotImplemented(deps.QueueStatsHandler))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
