/*
Package significance decides whether a candidate variant beats, matches or
regresses against the baseline.

The evaluator runs a pooled two-proportion z-test on click-through rate and
on error rate using the two variants' snapshots. A verdict other than
insufficient-data requires MinSamples impressions on both sides. Confidence
is reported as (1 - p) * 100 and significance is declared at the configured
floor (95% by default).

Classification order, first match wins:

 1. error rate significantly higher            → variant-regresses
 2. error-rate delta above MaxErrorRateDelta   → variant-regresses
 3. click-through significantly higher / lower → variant-wins / variant-regresses
 4. otherwise                                  → no-significant-difference

Rule 2 makes safety override improvement: a candidate whose error rate
drifts past the hard cap regresses even when neither test is significant.
*/
package significance
