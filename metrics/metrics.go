package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// MatchesMaterialized counts matches actually created by the materializer.
	MatchesMaterialized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recurring_matches_materialized_total",
			Help: "Matches created by the recurring match materializer.",
		})

	// OccurrencesSkipped counts occurrences absorbed by the duplicate guard.
	OccurrencesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recurring_occurrences_skipped_duplicate_total",
			Help: "Occurrences skipped because a match for the slot already existed.",
		})

	// OccurrencesFailed counts occurrences whose match creation errored.
	OccurrencesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recurring_occurrences_failed_total",
			Help: "Occurrences whose match creation failed.",
		})

	// ReplenishDuration observes full replenishment runs over all enabled schedules.
	ReplenishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recurring_replenish_run_seconds",
			Help:    "Duration of replenishment runs across all enabled recurring matches.",
			Buckets: prometheus.DefBuckets,
		})
)

func init() {
	prometheus.MustRegister(MatchesMaterialized, OccurrencesSkipped, OccurrencesFailed, ReplenishDuration)
}
