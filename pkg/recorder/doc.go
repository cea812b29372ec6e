/*
Package recorder accumulates per-variant interaction and performance metrics.

The UI reports four event kinds: impression, interaction (marker click),
error (error boundary catch) and latency (render-complete timing, seconds).
Each variant's counters live in their own bucket with a dedicated mutex, so
concurrent writers never lose an increment and Snapshot always returns a
copy taken while no update is in flight.

Metrics are append-only. Reset is reserved for an explicit experiment
restart; Restore reloads snapshots saved to the local store when a session
resumes.

	rec := recorder.New()
	_ = rec.Record(types.VariantPhase4Enhanced, types.EventImpression, 0)
	_ = rec.Record(types.VariantPhase4Enhanced, types.EventLatency, 0.180)

	m := rec.Snapshot(types.VariantPhase4Enhanced)
	fmt.Println(m.Impressions, m.LatencyMean())
*/
package recorder
