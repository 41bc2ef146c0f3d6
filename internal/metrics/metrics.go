package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Polls counts poll attempts by entity and outcome: ok, failed, skipped
	// (another fetch in flight) or gated.
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cragboard_polls_total",
		Help: "Total number of snapshot polls",
	}, []string{"entity", "outcome"})

	// FetchDuration measures snapshot fetch latency.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cragboard_fetch_duration_seconds",
		Help:    "Duration of snapshot fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity"})

	// Merges counts reconciliations by entity and whether state changed.
	Merges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cragboard_merges_total",
		Help: "Total number of snapshot reconciliations",
	}, []string{"entity", "changed"})

	// Mutations counts optimistic mutations by entity, kind and result.
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cragboard_mutations_total",
		Help: "Total number of local mutations sent to the server",
	}, []string{"entity", "kind", "result"})

	// Items is the current number of records per entity.
	Items = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cragboard_items",
		Help: "Current number of records held locally",
	}, []string{"entity"})

	// Pending is the current number of unconfirmed optimistic records.
	Pending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cragboard_pending_items",
		Help: "Current number of optimistic records awaiting confirmation",
	}, []string{"entity"})

	// Shadows is the current size of the deletion shadow ledger.
	Shadows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cragboard_shadows",
		Help: "Current number of live deletion or edit shadows",
	}, []string{"entity"})
)

// Changed renders a bool as a label value.
func Changed(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
