package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	syncRunsTotal      atomic.Int64
	syncFailuresTotal  atomic.Int64
	recordsSyncedTotal atomic.Int64
	cacheHitsTotal     atomic.Int64
	cacheMissesTotal   atomic.Int64
)

// ObserveSyncRun records the outcome of one coordinator invocation.
func ObserveSyncRun(success bool, recordsSynced int) {
	syncRunsTotal.Add(1)
	if !success {
		syncFailuresTotal.Add(1)
	}
	recordsSyncedTotal.Add(int64(recordsSynced))
}

func ObserveCacheHit()  { cacheHitsTotal.Add(1) }
func ObserveCacheMiss() { cacheMissesTotal.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP pulseboard_appstore_sync_runs_total Number of sync runs triggered since process start.\n")
	fmt.Fprintf(w, "# TYPE pulseboard_appstore_sync_runs_total counter\n")
	fmt.Fprintf(w, "pulseboard_appstore_sync_runs_total %d\n", syncRunsTotal.Load())

	fmt.Fprintf(w, "# HELP pulseboard_appstore_sync_failures_total Number of sync runs that finished unsuccessfully.\n")
	fmt.Fprintf(w, "# TYPE pulseboard_appstore_sync_failures_total counter\n")
	fmt.Fprintf(w, "pulseboard_appstore_sync_failures_total %d\n", syncFailuresTotal.Load())

	fmt.Fprintf(w, "# HELP pulseboard_appstore_records_synced_total Number of records written across all sync runs.\n")
	fmt.Fprintf(w, "# TYPE pulseboard_appstore_records_synced_total counter\n")
	fmt.Fprintf(w, "pulseboard_appstore_records_synced_total %d\n", recordsSyncedTotal.Load())

	fmt.Fprintf(w, "# HELP pulseboard_dashboard_cache_hits_total Number of dashboard reads served from Redis.\n")
	fmt.Fprintf(w, "# TYPE pulseboard_dashboard_cache_hits_total counter\n")
	fmt.Fprintf(w, "pulseboard_dashboard_cache_hits_total %d\n", cacheHitsTotal.Load())

	fmt.Fprintf(w, "# HELP pulseboard_dashboard_cache_misses_total Number of dashboard reads that fell through to postgres.\n")
	fmt.Fprintf(w, "# TYPE pulseboard_dashboard_cache_misses_total counter\n")
	fmt.Fprintf(w, "pulseboard_dashboard_cache_misses_total %d\n", cacheMissesTotal.Load())
}
