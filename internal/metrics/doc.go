/*
Package metrics exports sync engine activity to Prometheus.

Collector implements types.MetricsRecorder. Each collector owns a private
registry, so several engines or tests can create collectors without
colliding on the default registerer.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "docsync",
	})
	if err != nil {
		log.Fatal(err)
	}

	hub := engine.NewHub(store, cache, fallback, engine.Options{Recorder: collector})
	mux.Handle("/metrics", collector.Handler())

# Exported Series

	docsync_operations_total{operation,kind,outcome}
	docsync_operation_duration_seconds{operation,kind}
	docsync_probe_skips_total{kind,reason}
	docsync_read_source_total{kind,source}
	docsync_cleaner_deletes_total{kind,status}
	docsync_cache_entries{store}
	docsync_cache_hit_rate{store}

outcome is the source that served a read ("cloud", "local-cache",
"local-fallback", "default"), "noop" for a write that matched the cache,
"ok" for a clean pass, or "error".

A disabled collector accepts every call and records nothing. Its Handler
responds 404.

In addition to the Prometheus series the collector keeps per-operation
counts and average durations in memory. DebugHandler serves them as JSON
and ResetMetrics clears them without touching the Prometheus counters.
*/
package metrics
