// Package metrics exposes Prometheus instrumentation for the rescue
// board. Collectors are package-level, registered once, and safe for
// concurrent use. Label cardinality is kept deliberately small: outcomes
// and results are closed enumerations, never raw identifiers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActiveCases gauges the number of cases currently on the board.
	ActiveCases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "board_active_cases",
			Help: "Number of cases currently on the active board.",
		},
	)

	// UnsyncedCases gauges records whose local state has not reached the
	// remote store (pending-creation, pending-changes, or error).
	UnsyncedCases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "board_unsynced_cases",
			Help: "Number of active cases not currently synced upstream.",
		},
	)

	// Uploads counts upload attempts by result (ok, error, dropped).
	Uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_case_uploads_total",
			Help: "Total case upload attempts by result.",
		},
		[]string{"result"},
	)

	// Assignments counts assignment engine runs by outcome.
	Assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_assignments_total",
			Help: "Total assignment attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// ReconcileRuns counts full reconciliations against the remote store.
	ReconcileRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "board_reconcile_runs_total",
			Help: "Total full reconciliation runs.",
		},
	)

	// ReconcileConflicts counts display-ID collisions resolved during
	// reconciliation.
	ReconcileConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "board_reconcile_conflicts_total",
			Help: "Total display identifier conflicts resolved during reconciliation.",
		},
	)

	// NotificationsDropped counts outbound notices shed by the rate limiter.
	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "board_notifications_dropped_total",
			Help: "Outbound chat notifications dropped by the rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ActiveCases,
		UnsyncedCases,
		Uploads,
		Assignments,
		ReconcileRuns,
		ReconcileConflicts,
		NotificationsDropped,
	)
}
