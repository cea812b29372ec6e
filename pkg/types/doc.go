/*
Package types defines the core data structures shared by the rollout engine.

Every other package exchanges these values: the assignment functions read
ExperimentConfig, the recorder produces PerformanceMetrics, the significance
evaluator returns Verdict, the planner walks RolloutPhase and writes
AuditEntry, and the monitor emits Alert.

# Core Types

Variant Catalog:
  - Variant: closed string enum (original, enhanced-png, svg, phase4-enhanced)
    with the fallback "testing". Being a string type, unseen identifiers
    from older clients stay representable and are handled by the render
    mode fallback.
  - RenderMode: the tag the map UI switches on (classic, png, svg,
    svg-enhanced). The default is svg.

Experiment Configuration:
  - WeightEntry / ExperimentConfig: an ordered (variant, weight) table
    summing to 100. Order matters; assignment walks the table in order.
  - RolloutPhase: name, traffic percent, weight table, readiness gates
    (MinSamples, MinDuration) and rollback Thresholds.

Measurements and Decisions:
  - PerformanceMetrics: per-variant counters plus latency sum and
    sum-of-squares. CTR, error rate, latency mean and variance are derived.
  - Verdict / VerdictKind: insufficient-data, no-significant-difference,
    variant-wins, variant-regresses.
  - Alert / Severity: warning or critical threshold breaches.
  - AuditEntry: planner transitions and refusals, with their trigger source.

# Usage

	cfg := types.ExperimentConfig{Weights: []types.WeightEntry{
		{Variant: types.VariantOriginal, Weight: 95},
		{Variant: types.VariantPhase4Enhanced, Weight: 5},
	}}

	m := types.PerformanceMetrics{Impressions: 200, Interactions: 30}
	fmt.Println(m.ClickThroughRate()) // 0.15

All types are plain values; copies never share mutable state except the
Weights slice, which ExperimentConfig.Clone duplicates.
*/
package types
