// Package metrics exports the Prometheus counters, histograms, and gauges
// the spec's metrics surface names, grounded on
// rezaabdurahman-Link/backend/shared-libs/metrics/metrics.go and
// middleware.go — the teacher (kozaktomas-photo-sorter) has no metrics
// package at all, so this component is built entirely from the rest of the
// pack's promauto idiom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds every metric the recognition service exports.
type Recorder struct {
	RecognitionTotal   *prometheus.CounterVec
	RegistrationTotal  *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	BatchJobsTotal     *prometheus.CounterVec
	BatchImagesTotal   *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec

	RecognitionDuration  *prometheus.HistogramVec
	RegistrationDuration *prometheus.HistogramVec
	HNSWSearchDuration   prometheus.Histogram
	DBQueryDuration      *prometheus.HistogramVec
	HTTPRequestDuration  *prometheus.HistogramVec

	HNSWIndexSize      prometheus.Gauge
	ActiveUsers        prometheus.Gauge
	GPUMemoryUsed      prometheus.Gauge
	GPUMemoryTotal     prometheus.Gauge
	TensorflowGPUActive prometheus.Gauge
}

// NewRecorder registers every metric against the default registry. A
// service constructs exactly one Recorder at startup and injects it into
// the coordinator, batch engine, and HTTP layer — no package-level globals.
func NewRecorder() *Recorder {
	durationBuckets := []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

	return &Recorder{
		RecognitionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recognition_total",
			Help: "Total recognition attempts by outcome and detector mode.",
		}, []string{"status", "mode"}),

		RegistrationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_total",
			Help: "Total registration attempts by outcome.",
		}, []string{"status"}),

		CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total result-cache hits.",
		}),

		CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total result-cache misses.",
		}),

		BatchJobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_jobs_total",
			Help: "Total batch jobs by terminal status.",
		}, []string{"status"}),

		BatchImagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_images_total",
			Help: "Total images processed within batch jobs, by outcome.",
		}, []string{"status"}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status_code"}),

		RecognitionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recognition_duration_seconds",
			Help:    "Recognition pipeline latency by outcome and detector mode.",
			Buckets: durationBuckets,
		}, []string{"status", "mode"}),

		RegistrationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registration_duration_seconds",
			Help:    "Registration pipeline latency by outcome.",
			Buckets: durationBuckets,
		}, []string{"status"}),

		HNSWSearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hnsw_search_duration_seconds",
			Help:    "Vector index search latency.",
			Buckets: durationBuckets,
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Descriptor store query latency by operation.",
			Buckets: durationBuckets,
		}, []string{"operation"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method, route, and status code.",
			Buckets: durationBuckets,
		}, []string{"method", "route", "status_code"}),

		HNSWIndexSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hnsw_index_size",
			Help: "Current number of live vectors in the index.",
		}),

		ActiveUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "active_users",
			Help: "Current number of active enrolled users.",
		}),

		GPUMemoryUsed: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gpu_memory_used_bytes",
			Help: "GPU memory currently in use by the embedder backend, if reported.",
		}),

		GPUMemoryTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gpu_memory_total_bytes",
			Help: "Total GPU memory available to the embedder backend, if reported.",
		}),

		TensorflowGPUActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tensorflow_gpu_active",
			Help: "1 if the embedder backend reports an active GPU device, else 0.",
		}),
	}
}

func (r *Recorder) RecordCacheHit()  { r.CacheHitsTotal.Inc() }
func (r *Recorder) RecordCacheMiss() { r.CacheMissesTotal.Inc() }

func (r *Recorder) RecordRecognition(status, mode string, seconds float64) {
	r.RecognitionTotal.WithLabelValues(status, mode).Inc()
	r.RecognitionDuration.WithLabelValues(status, mode).Observe(seconds)
}

func (r *Recorder) RecordRegistration(status string, seconds float64) {
	r.RegistrationTotal.WithLabelValues(status).Inc()
	r.RegistrationDuration.WithLabelValues(status).Observe(seconds)
}

func (r *Recorder) RecordBatchJob(status string) {
	r.BatchJobsTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordBatchImage(status string) {
	r.BatchImagesTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordHNSWSearch(seconds float64) {
	r.HNSWSearchDuration.Observe(seconds)
}

func (r *Recorder) RecordDBQuery(operation string, seconds float64) {
	r.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
}

func (r *Recorder) SetHNSWIndexSize(n uint64) {
	r.HNSWIndexSize.Set(float64(n))
}

func (r *Recorder) SetActiveUsers(n int64) {
	r.ActiveUsers.Set(float64(n))
}
