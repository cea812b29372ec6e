/*
Package rollout implements the phase planner that walks an experiment from a
small canary share to full traffic.

The planner owns a single pointer into an ordered list of phases. The pointer
only moves through the transition API, and every transition is serialized by
the planner's mutex and written to an append-only audit trail.

# State Machine

	         Advance (gates pass)        Advance (gates pass)
	┌────────┐ ───────────────► ┌────────┐ ───────────────► ┌────────┐
	│phase 0 │                  │phase 1 │       ...        │phase N │
	└────────┘ ◄─────────────── └────────┘ ◄─────────────── └────────┘
	     ▲          Rollback                    Rollback
	     │
	     └── Rollback at phase 0: no transition, audit entry, hold set

# Readiness Gates

Advance is refused, with a *NotReadyError listing every failed gate, unless:

  - the current phase has been active for at least MinDuration
  - every non-zero-weight variant has at least MinSamples impressions
  - no challenger evaluates to variant-regresses or insufficient-data

Advance is also refused while a rollback hold is active (ErrHeld) and at the
final phase (ErrFinalPhase). Metrics are never reset on advance.

# Usage

	planner, err := rollout.NewPlanner(phases, types.VariantOriginal, rec, eval,
		rollout.WithStore(store),
		rollout.WithPublisher(broker),
	)
	if err != nil {
		return err
	}

	next, err := planner.Advance(types.SourceManual)
	var notReady *rollout.NotReadyError
	if errors.As(err, &notReady) {
		fmt.Println(notReady.Reasons)
	}

ValidatePlan is shared with configuration loading so an invalid weight table
is rejected before any planner is built.
*/
package rollout
