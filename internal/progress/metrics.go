// Package progress metrics counters for the sync coordinator. Registered
// eagerly, harmless if no /metrics endpoint is exposed.
package progress

import "github.com/prometheus/client_golang/prometheus"

var (
	flushPassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_flush_passes_total",
		Help: "Total sync queue drain passes started",
	})
	completionsConfirmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_completions_confirmed_total",
		Help: "Total completion facts confirmed by the remote service",
	})
	completionsConflictTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_completions_conflict_total",
		Help: "Total completion facts that already existed remotely (idempotent conflicts, treated as confirmed)",
	})
	completionsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_completions_rejected_total",
		Help: "Total completion facts permanently rejected by the remote service and dropped from the queue",
	})
	flushTransientFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_flush_transient_failures_total",
		Help: "Total drain passes halted by a transient remote failure",
	})
	syncQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "progress_sync_queue_depth",
		Help: "Unconfirmed completion facts in the sync queue for the active session",
	})
)

func init() {
	prometheus.MustRegister(
		flushPassesTotal,
		completionsConfirmedTotal,
		completionsConflictTotal,
		completionsRejectedTotal,
		flushTransientFailuresTotal,
		syncQueueDepth,
	)
}
