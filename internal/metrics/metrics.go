// Package metrics exposes Prometheus counters shared across the worker,
// queue, and process-group subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envied_proc_terminate_total",
		Help: "Signals sent to worker process groups, by signal and outcome.",
	}, []string{"signal", "outcome"})

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envied_proc_wait_total",
		Help: "Outcomes observed while waiting for a worker process group to exit.",
	}, []string{"outcome"})

	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "envied_jobs_enqueued_total",
		Help: "Total download jobs accepted by the scheduler.",
	})

	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envied_jobs_completed_total",
		Help: "Total download jobs that reached a terminal status.",
	}, []string{"status"})

	JobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "envied_jobs_active",
		Help: "Jobs currently executing in a worker subprocess.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "envied_queue_depth",
		Help: "Jobs currently waiting for a free worker slot.",
	})

	DRMLicenseRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envied_drm_license_requests_total",
		Help: "DRM license acquisition attempts, by service and outcome.",
	}, []string{"service", "outcome"})

	CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envied_cache_ops_total",
		Help: "Cache store operations, by operation and outcome.",
	}, []string{"op", "outcome"})
)

// IncProcTerminate records a signal delivery to a worker process group.
func IncProcTerminate(signal, outcome string) {
	procTerminate.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records the outcome of waiting for a worker process group to exit.
func IncProcWait(outcome string) {
	procWait.WithLabelValues(outcome).Inc()
}

// IncJobsEnqueued records one job accepted by the scheduler.
func IncJobsEnqueued() {
	JobsEnqueued.Inc()
}

// IncJobsCompleted records one job reaching a terminal status.
func IncJobsCompleted(status string) {
	JobsCompleted.WithLabelValues(status).Inc()
}

// SetJobsActive adjusts the active-jobs gauge by delta (+1 on dispatch,
// -1 on completion).
func SetJobsActive(delta float64) {
	JobsActive.Add(delta)
}

// SetQueueDepth sets the queue-depth gauge to the current pending count.
func SetQueueDepth(n float64) {
	QueueDepth.Set(n)
}

// IncDRMLicenseRequest records one DRM license acquisition attempt.
func IncDRMLicenseRequest(service, outcome string) {
	DRMLicenseRequests.WithLabelValues(service, outcome).Inc()
}

// IncCacheOp records one cache store operation.
func IncCacheOp(op, outcome string) {
	CacheOps.WithLabelValues(op, outcome).Inc()
}
