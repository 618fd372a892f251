// Package metrics exposes Prometheus collectors for the job queue and pools.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arvindpillai/photoforge/internal/pool"
)

var (
	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photoforge_jobs_enqueued_total",
		Help: "Styling jobs accepted by the queue.",
	})
	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photoforge_jobs_completed_total",
		Help: "Jobs that reached the completed state.",
	})
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photoforge_jobs_failed_total",
		Help: "Jobs that reached the failed state after exhausting retries.",
	})
	JobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photoforge_job_retries_total",
		Help: "Retry attempts scheduled after a processing failure.",
	})
	JobsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photoforge_jobs_reaped_total",
		Help: "Stuck jobs forced to failed by the reaper.",
	})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "photoforge_queue_depth",
		Help: "Jobs per status.",
	}, []string{"status"})
)

// SetQueueDepth records the per-status job counts.
func SetQueueDepth(counts map[string]int) {
	for status, n := range counts {
		queueDepth.WithLabelValues(status).Set(float64(n))
	}
}

// RegisterPoolStats publishes live gauges for a resource pool. Call once per
// pool name; duplicate registration panics, as with any prometheus collector.
func RegisterPoolStats(name string, stats func() pool.Stats) {
	labels := prometheus.Labels{"pool": name}
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "photoforge_pool_active",
		Help:        "Pooled handles currently leased.",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Active) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "photoforge_pool_idle",
		Help:        "Pooled handles sitting idle.",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Idle) })
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "photoforge_pool_waiting",
		Help:        "Callers waiting for a pooled handle.",
		ConstLabels: labels,
	}, func() float64 { return float64(stats().Waiting) })
}
