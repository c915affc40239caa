// Package metrics exposes Prometheus instruments for exam attempts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockexam_attempts_started_total",
			Help: "Number of attempts started",
		},
		[]string{"exam"},
	)

	AttemptsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockexam_attempts_submitted_total",
			Help: "Number of attempts submitted, by verdict and whether the clock forced it",
		},
		[]string{"exam", "verdict", "forced"},
	)

	ScorePercentage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mockexam_score_percentage",
			Help:    "Distribution of submitted scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"exam"},
	)

	LiveRunners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mockexam_live_runners",
			Help: "Attempt runners held in memory",
		},
	)

	QueueRequeues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockexam_queue_requeues_total",
			Help: "Payloads pushed back after a failed persist",
		},
		[]string{"queue"},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mockexam_login_attempts_total",
			Help: "Learner login attempts by outcome",
		},
		[]string{"status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
