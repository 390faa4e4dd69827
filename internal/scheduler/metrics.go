package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stoker_jobs_submitted_total",
			Help: "Total number of jobs accepted by Submit.",
		},
	)

	jobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stoker_jobs_running",
			Help: "Number of jobs currently executing.",
		},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stoker_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status.",
		},
		[]string{"status"},
	)

	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stoker_job_duration_seconds",
			Help:    "Wall-clock execution time of jobs, from running to terminal.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(jobsSubmitted)
	prometheus.MustRegister(jobsRunning)
	prometheus.MustRegister(jobsFinished)
	prometheus.MustRegister(jobDuration)
}
