package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tessd_jobs_total",
			Help: "Total number of dispatched jobs.",
		},
		[]string{"action", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tessd_job_duration_seconds",
			Help:    "Job handler duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	langCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tessd_lang_cache_hits_total",
			Help: "Trained-data loads served from cache.",
		},
	)

	langCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tessd_lang_cache_misses_total",
			Help: "Trained-data loads that fell through to a fetch.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(langCacheHits)
	prometheus.MustRegister(langCacheMisses)
}
