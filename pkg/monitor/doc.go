/*
Package monitor watches a live rollout and rolls it back when a challenger
breaches its phase thresholds.

Every tick the monitor snapshots the baseline and each challenger of the
active phase, then compares them:

	┌──────────────┐  Snapshot   ┌──────────────┐
	│   Recorder   │ ──────────► │   Monitor    │
	└──────────────┘             └──────┬───────┘
	                                    │ error rate delta
	                                    │ latency regression
	                     ┌──────────────┼──────────────┐
	                     ▼              ▼              ▼
	                 warning        critical       healthy
	                  alert      alert + Rollback  (AutoAdvance)

Variants below MinImpressions are skipped. A threshold of zero is disabled.
Identical alerts (same variant, metric and severity) within Cooldown are
suppressed, but a critical breach always rolls the planner back unless it is
already at the first phase and held. The monitor only reads metrics.

Raised alerts are kept in a bounded in-memory log (Alerts), persisted through
the optional AlertStore, and published as alert.raised events.
*/
package monitor
