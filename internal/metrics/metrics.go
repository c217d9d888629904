package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluations_total",
			Help: "Evaluations that reached a terminal verdict",
		},
		[]string{"kind", "verdict"},
	)

	JudgePollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "judge_poll_attempts",
			Help:    "Poll attempts needed before the judge reported a terminal status",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20},
		},
	)

	JudgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "judge_request_duration_seconds",
			Help:    "Duration of HTTP requests to the judge service",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	AggregateUpdateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_update_failures_total",
			Help: "Failed fan-out updates after a terminal verdict",
		},
		[]string{"updater"},
	)

	DailyChallengeCompletions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "daily_challenge_completions_total",
			Help: "New daily challenge completions",
		},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EvaluationsTotal,
			JudgePollAttempts,
			JudgeRequestDuration,
			AggregateUpdateFailures,
			DailyChallengeCompletions,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
