package assign

import (
	"github.com/cespare/xxhash/v2"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/google/uuid"
)

// bucketResolution is the number of hash buckets per percentage point
const bucketResolution = 100

// renderModes maps every catalog variant to its render mode. A test asserts
// that every entry of types.KnownVariants is present.
var renderModes = map[types.Variant]types.RenderMode{
	types.VariantOriginal:       types.RenderModeClassic,
	types.VariantEnhancedPNG:    types.RenderModePNG,
	types.VariantSVG:            types.RenderModeSVG,
	types.VariantPhase4Enhanced: types.RenderModeSVGEnhanced,
	types.VariantTesting:        types.RenderModeSVG,
}

// NewSegmentKey mints an opaque segment key. Callers derive it once per
// browsing session and reuse it for every assignment in that session.
func NewSegmentKey() string {
	return uuid.NewString()
}

// Bucket hashes a segment key to a position in [0, 100)
func Bucket(segmentKey string) float64 {
	h := xxhash.Sum64String(segmentKey)
	return float64(h%(100*bucketResolution)) / bucketResolution
}

// Assign returns the variant for segmentKey under cfg.
//
// The weight table is walked in its configured order and the first variant
// whose cumulative weight exceeds the key's bucket wins. A bucket past the
// final cumulative weight resolves to the last non-zero variant. A table
// without any non-zero weight resolves to types.VariantTesting.
func Assign(segmentKey string, cfg types.ExperimentConfig) types.Variant {
	position := Bucket(segmentKey)

	cumulative := 0.0
	last := types.VariantTesting
	for _, entry := range cfg.Weights {
		if entry.Weight <= 0 {
			continue
		}
		cumulative += entry.Weight
		last = entry.Variant
		if position < cumulative {
			return entry.Variant
		}
	}

	return last
}

// VariantToRenderMode maps a variant to the render mode the UI should use.
// Unknown or legacy identifiers fall back to types.DefaultRenderMode.
func VariantToRenderMode(v types.Variant) types.RenderMode {
	if mode, ok := renderModes[v]; ok {
		return mode
	}
	return types.DefaultRenderMode
}

// Distribution tallies the assignment of every key under cfg
func Distribution(keys []string, cfg types.ExperimentConfig) map[types.Variant]int {
	counts := make(map[types.Variant]int)
	for _, key := range keys {
		counts[Assign(key, cfg)]++
	}
	return counts
}
