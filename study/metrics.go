package study

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sanyam07/diego/model"
)

// Metric label values for the execution mode.
const (
	modeSequential = "sequential"
	modeParallel   = "parallel"
)

var (
	trialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diego_trials_total",
			Help: "Total number of trials finished, by terminal state.",
		},
		[]string{"state"},
	)

	trialDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diego_trial_duration_seconds",
			Help:    "Duration of a trial's fit and score steps, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	optimizeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diego_optimize_runs_total",
			Help: "Total number of optimize calls, by execution mode.",
		},
		[]string{"mode"},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "diego_active_workers",
			Help: "Number of currently running trial workers.",
		},
	)
)

func init() {
	prometheus.MustRegister(trialsTotal)
	prometheus.MustRegister(trialDuration)
	prometheus.MustRegister(optimizeRunsTotal)
	prometheus.MustRegister(activeWorkers)

	// Pre-initialize counter label combinations so they appear in /metrics
	// with value 0 from startup, rather than only after first observation.
	for _, state := range []string{model.StateComplete, model.StateFail, model.StatePruned} {
		trialsTotal.WithLabelValues(state)
	}
	optimizeRunsTotal.WithLabelValues(modeSequential)
	optimizeRunsTotal.WithLabelValues(modeParallel)
}
