/*
Package engine is the facade over the experimentation components.

	                 ┌────────────────────────────────────────┐
	 GetAssigned     │                Engine                  │
	 Variant ──────► │  assign ◄── planner.ActiveConfig()     │
	                 │                                        │
	 RecordEvent ──► │  recorder ──► evaluator ──► planner    │
	                 │     │                        ▲  │      │
	 Dashboard ◄──── │     └──────► monitor ────────┘  │      │
	                 │                │                ▼      │
	                 │                └──► broker, store       │
	                 └────────────────────────────────────────┘

New validates the configuration, opens the bbolt store when a data
directory is configured, restores persisted metrics, and resumes the planner
from its audit log. Start launches the monitor loop, the Prometheus gauge
collector and periodic metric persistence; Stop persists a final snapshot
and closes the store.
*/
package engine
