package run

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideabank_runs_started_total",
			Help: "Pipeline runs started, by item type.",
		},
		[]string{"item_type"},
	)

	runsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideabank_runs_finished_total",
			Help: "Pipeline runs finished, by item type and terminal state.",
		},
		[]string{"item_type", "state"},
	)

	itemsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideabank_items_added_total",
			Help: "Items added to the library, by item type.",
		},
		[]string{"item_type"},
	)

	itemsMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ideabank_items_merged_total",
			Help: "Candidates merged into existing library items, by item type.",
		},
		[]string{"item_type"},
	)

	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ideabank_run_phase_duration_seconds",
			Help:    "Duration of each pipeline phase.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"phase"},
	)
)

func recordRunStarted(itemType string) {
	runsStarted.WithLabelValues(itemType).Inc()
}

func recordRunFinished(itemType string, terminal Phase, delta Stats) {
	runsFinished.WithLabelValues(itemType, string(terminal)).Inc()
	if delta.ItemsAdded > 0 {
		itemsAdded.WithLabelValues(itemType).Add(float64(delta.ItemsAdded))
	}
	if delta.ItemsMerged > 0 {
		itemsMerged.WithLabelValues(itemType).Add(float64(delta.ItemsMerged))
	}
}

func recordPhaseDuration(phase Phase, d time.Duration) {
	phaseDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}
