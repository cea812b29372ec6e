package assign

import (
	"fmt"
	"math"
	"testing"

	"github.com/cuemby/rollout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("session-%06d", i)
	}
	return keys
}

func TestAssignDeterministic(t *testing.T) {
	cfg := types.ExperimentConfig{Weights: []types.WeightEntry{
		{Variant: types.VariantOriginal, Weight: 50},
		{Variant: types.VariantPhase4Enhanced, Weight: 50},
	}}

	for _, key := range sampleKeys(500) {
		first := Assign(key, cfg)
		second := Assign(key, cfg)
		assert.Equal(t, first, second, "key %s", key)
	}
}

func TestAssignWeightConservation(t *testing.T) {
	tests := []struct {
		name    string
		weights []types.WeightEntry
	}{
		{
			name: "canary 5",
			weights: []types.WeightEntry{
				{Variant: types.VariantOriginal, Weight: 95},
				{Variant: types.VariantPhase4Enhanced, Weight: 5},
			},
		},
		{
			name: "three way",
			weights: []types.WeightEntry{
				{Variant: types.VariantOriginal, Weight: 50},
				{Variant: types.VariantEnhancedPNG, Weight: 30},
				{Variant: types.VariantSVG, Weight: 20},
			},
		},
		{
			name: "even split",
			weights: []types.WeightEntry{
				{Variant: types.VariantOriginal, Weight: 50},
				{Variant: types.VariantPhase4Enhanced, Weight: 50},
			},
		},
	}

	const samples = 10000
	keys := sampleKeys(samples)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := types.ExperimentConfig{Weights: tt.weights}
			counts := Distribution(keys, cfg)

			for _, w := range tt.weights {
				share := 100 * float64(counts[w.Variant]) / samples
				assert.InDelta(t, w.Weight, share, 2.0, "variant %s", w.Variant)
			}
		})
	}
}

func TestAssignZeroWeightNeverAssigned(t *testing.T) {
	cfg := types.ExperimentConfig{Weights: []types.WeightEntry{
		{Variant: types.VariantSVG, Weight: 0},
		{Variant: types.VariantOriginal, Weight: 100},
		{Variant: types.VariantEnhancedPNG, Weight: 0},
	}}

	counts := Distribution(sampleKeys(2000), cfg)
	assert.Equal(t, map[types.Variant]int{types.VariantOriginal: 2000}, counts)
}

func TestAssignRoundingFallsBackToLastNonZero(t *testing.T) {
	// Weights sum slightly below 100, so some buckets land past the final bound
	cfg := types.ExperimentConfig{Weights: []types.WeightEntry{
		{Variant: types.VariantOriginal, Weight: 49.995},
		{Variant: types.VariantEnhancedPNG, Weight: 49.995},
		{Variant: types.VariantSVG, Weight: 0},
	}}

	for _, key := range sampleKeys(5000) {
		v := Assign(key, cfg)
		require.Contains(t, []types.Variant{types.VariantOriginal, types.VariantEnhancedPNG}, v)
		if Bucket(key) >= cfg.Total() {
			assert.Equal(t, types.VariantEnhancedPNG, v)
		}
	}
}

func TestAssignEmptyConfig(t *testing.T) {
	assert.Equal(t, types.VariantTesting, Assign("anyone", types.ExperimentConfig{}))

	allZero := types.ExperimentConfig{Weights: []types.WeightEntry{{Variant: types.VariantSVG, Weight: 0}}}
	assert.Equal(t, types.VariantTesting, Assign("anyone", allZero))
}

func TestBucketRange(t *testing.T) {
	for _, key := range sampleKeys(1000) {
		b := Bucket(key)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 100.0)
		assert.Equal(t, b, math.Round(b*bucketResolution)/bucketResolution)
	}
}

func TestVariantToRenderModeTotal(t *testing.T) {
	for _, v := range types.KnownVariants {
		_, ok := renderModes[v]
		assert.True(t, ok, "variant %s missing from render mode table", v)
		assert.NotEmpty(t, VariantToRenderMode(v))
	}

	assert.Equal(t, types.RenderModeClassic, VariantToRenderMode(types.VariantOriginal))
	assert.Equal(t, types.RenderModePNG, VariantToRenderMode(types.VariantEnhancedPNG))
	assert.Equal(t, types.RenderModeSVGEnhanced, VariantToRenderMode(types.VariantPhase4Enhanced))
	assert.Equal(t, types.RenderModeSVG, VariantToRenderMode(types.VariantTesting))

	assert.Equal(t, types.RenderModeSVG, VariantToRenderMode("legacy-canvas"))
	assert.Equal(t, types.RenderModeSVG, VariantToRenderMode(""))
}

func TestNewSegmentKeyUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := NewSegmentKey()
		assert.False(t, seen[key])
		seen[key] = true
	}
}
