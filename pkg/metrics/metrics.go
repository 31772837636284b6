package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "drip_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drip_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CompileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drip_compile_duration_seconds",
			Help:    "Time spent compiling a flowchart into jobs",
			Buckets: prometheus.DefBuckets,
		},
	)
	JobsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "drip_jobs_scheduled_total", Help: "Jobs submitted to the store"},
	)
	JobsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "drip_jobs_claimed_total", Help: "Jobs claimed for execution"},
	)
	JobsReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "drip_jobs_reclaimed_total", Help: "Jobs reclaimed from expired leases"},
	)
	JobsSent = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "drip_jobs_sent_total", Help: "Jobs completed successfully"},
	)
	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "drip_jobs_failed_total", Help: "Jobs failed"},
	)
	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drip_job_send_duration_seconds",
			Help:    "Time spent sending one email",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal, APIRequestDuration,
		CompileDuration, JobsScheduled, JobsClaimed, JobsReclaimed, JobsSent, JobsFailed, SendDuration,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
