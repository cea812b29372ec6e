/*
Package storage provides BoltDB-backed local-device persistence for the
rollout engine.

Nothing here is an experiment store shared between devices. The database
keeps three things on the local device:

	┌──────────── <dataDir>/rollout.db ────────────┐
	│ audit    (sequence key) planner audit trail   │
	│ alerts   (sequence key) monitor alert log     │
	│ metrics  (variant key)  recorder snapshots    │
	└───────────────────────────────────────────────┘

Audit entries and alerts are keyed by the bucket's NextSequence encoded
big-endian, so a ForEach walk returns them in insertion order. Metric
snapshots are upserted per variant when the engine stops and reloaded when
it starts, letting a session resume without losing its counts.

All values are JSON-encoded.
*/
package storage
