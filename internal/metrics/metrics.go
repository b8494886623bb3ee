// Package metrics exposes the service's prometheus counters and the
// optional /metrics listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// FilesDownloaded counts supplier files fetched from portals.
	FilesDownloaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openprices_files_downloaded_total",
		Help: "Supplier files downloaded from chain portals.",
	})

	// SnapshotsReconciled counts per-store price snapshots reconciled.
	SnapshotsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openprices_snapshots_reconciled_total",
		Help: "Per-store price snapshots reconciled into history.",
	})

	// PriceChanges counts detected price changes.
	PriceChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openprices_price_changes_total",
		Help: "Price changes detected during reconciliation.",
	})

	// IntervalsClosed counts price intervals closed (changes and
	// disappearances).
	IntervalsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openprices_intervals_closed_total",
		Help: "Price history intervals closed.",
	})

	// TaskFailures counts pipeline tasks that failed and were skipped.
	TaskFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "openprices_task_failures_total",
		Help: "Pipeline tasks that failed.",
	})
)

// Serve exposes /metrics on addr in a background goroutine. Listener
// errors are logged, not fatal.
func Serve(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
}
