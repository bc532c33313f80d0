// Package metrics declares the Prometheus instruments shared by the ranking
// path, the jobs layer, and the external collaborators.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ranking
	ScoreCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onboard_score_calls_total",
			Help: "Total number of ranking calls",
		},
	)

	ItemsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_items_scored_total",
			Help: "Candidate items by scoring outcome",
		},
		[]string{"outcome"}, // "scored", "no_vector"
	)

	ExplorationBoosts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onboard_exploration_boosts_total",
			Help: "Number of ranking calls where exploration boosted an item",
		},
	)

	ScoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onboard_score_duration_seconds",
			Help:    "Duration of a ranking call including profile computation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Vector store
	VectorLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_vector_lookups_total",
			Help: "Vector lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	// Jobs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_job_runs_total",
			Help: "Maintenance job runs by job and status",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onboard_job_duration_seconds",
			Help:    "Duration of maintenance job runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	// Collaborators
	ExtractRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_extract_requests_total",
			Help: "Text extraction attempts by result",
		},
		[]string{"result"}, // "ok", "degraded"
	)

	EmbedTexts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onboard_embedded_texts_total",
			Help: "Texts sent to the embedding backend",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_http_requests_total",
			Help: "API requests by route and status class",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordJob records one job run.
func RecordJob(job string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	JobRuns.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
