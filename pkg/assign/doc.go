/*
Package assign implements deterministic variant assignment.

Assign is a pure function of the segment key and the active weight table:
the key is hashed with xxhash64 into one of 10,000 buckets covering [0, 100),
and the weight table is walked in order until the cumulative weight exceeds
the bucket. The same key under the same table always lands on the same
variant, so assignments survive reloads for the lifetime of a phase, and
widening a candidate's weight only moves keys from the variants whose share
shrank.

VariantToRenderMode is the total mapping from variant to the marker render
mode consumed by the map UI. Unknown identifiers (older clients, removed
variants) render as svg.

	key := assign.NewSegmentKey() // once per session
	v := assign.Assign(key, planner.ActiveConfig())
	mode := assign.VariantToRenderMode(v)
*/
package assign
