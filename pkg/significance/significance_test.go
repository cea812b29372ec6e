package significance

import (
	"testing"

	"github.com/cuemby/rollout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[types.Variant]types.PerformanceMetrics

func (m mapSource) Snapshot(v types.Variant) types.PerformanceMetrics {
	s := m[v]
	s.Variant = v
	return s
}

func metricsOf(v types.Variant, impressions, interactions, errors int64) types.PerformanceMetrics {
	return types.PerformanceMetrics{Variant: v, Impressions: impressions, Interactions: interactions, Errors: errors}
}

func TestCompare(t *testing.T) {
	base := types.VariantOriginal
	cand := types.VariantPhase4Enhanced

	tests := []struct {
		name     string
		cfg      Config
		base     types.PerformanceMetrics
		cand     types.PerformanceMetrics
		wantKind types.VerdictKind
	}{
		{
			name:     "no data",
			cfg:      DefaultConfig(),
			base:     metricsOf(base, 0, 0, 0),
			cand:     metricsOf(cand, 0, 0, 0),
			wantKind: types.VerdictInsufficientData,
		},
		{
			name:     "candidate below minimum",
			cfg:      DefaultConfig(),
			base:     metricsOf(base, 500, 50, 0),
			cand:     metricsOf(cand, 50, 10, 0),
			wantKind: types.VerdictInsufficientData,
		},
		{
			name:     "higher click-through wins",
			cfg:      DefaultConfig(),
			base:     metricsOf(base, 1000, 100, 10),
			cand:     metricsOf(cand, 1000, 150, 10),
			wantKind: types.VerdictVariantWins,
		},
		{
			name:     "lower click-through regresses",
			cfg:      DefaultConfig(),
			base:     metricsOf(base, 1000, 150, 10),
			cand:     metricsOf(cand, 1000, 100, 10),
			wantKind: types.VerdictVariantRegresses,
		},
		{
			name:     "significantly higher error rate regresses despite better click-through",
			cfg:      DefaultConfig(),
			base:     metricsOf(base, 1000, 100, 20),
			cand:     metricsOf(cand, 1000, 150, 100),
			wantKind: types.VerdictVariantRegresses,
		},
		{
			name:     "identical metrics show no difference",
			cfg:      DefaultConfig(),
			base:     metricsOf(base, 1000, 120, 5),
			cand:     metricsOf(cand, 1000, 120, 5),
			wantKind: types.VerdictNoDifference,
		},
		{
			name:     "insignificant error increase above hard cap regresses",
			cfg:      Config{MinSamples: 100, ConfidenceLevel: 0.95, MaxErrorRateDelta: 0.01},
			base:     metricsOf(base, 200, 20, 2),
			cand:     metricsOf(cand, 200, 20, 6),
			wantKind: types.VerdictVariantRegresses,
		},
		{
			name:     "same error increase below default cap shows no difference",
			cfg:      DefaultConfig(),
			base:     metricsOf(base, 200, 20, 2),
			cand:     metricsOf(cand, 200, 20, 6),
			wantKind: types.VerdictNoDifference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.cfg, mapSource{})
			v := e.Compare(tt.base, tt.cand)

			assert.Equal(t, tt.wantKind, v.Kind, v.Reason)
			assert.Equal(t, tt.base.Impressions, v.BaselineSamples)
			assert.Equal(t, tt.cand.Impressions, v.CandidateSamples)
			assert.Equal(t, cand, v.Variant)
			assert.Equal(t, base, v.Baseline)
			assert.GreaterOrEqual(t, v.Confidence, 0.0)
			assert.LessOrEqual(t, v.Confidence, 100.0)
		})
	}
}

func TestCompareConfidence(t *testing.T) {
	e := New(DefaultConfig(), mapSource{})
	v := e.Compare(
		metricsOf(types.VariantOriginal, 1000, 100, 10),
		metricsOf(types.VariantPhase4Enhanced, 1000, 150, 10),
	)

	require.Equal(t, types.VerdictVariantWins, v.Kind)
	assert.Greater(t, v.Confidence, 99.0)
	assert.Greater(t, v.ClickThroughZ, 3.0)
	assert.InDelta(t, 0.05, v.ClickThroughDelta, 1e-9)
}

func TestCompareDeterministic(t *testing.T) {
	e := New(DefaultConfig(), mapSource{})
	base := metricsOf(types.VariantOriginal, 800, 90, 12)
	cand := metricsOf(types.VariantSVG, 750, 101, 9)

	assert.Equal(t, e.Compare(base, cand), e.Compare(base, cand))
}

func TestEvaluateReadsSource(t *testing.T) {
	source := mapSource{
		types.VariantOriginal:       metricsOf(types.VariantOriginal, 1000, 100, 20),
		types.VariantPhase4Enhanced: metricsOf(types.VariantPhase4Enhanced, 1000, 100, 100),
		types.VariantSVG:            metricsOf(types.VariantSVG, 10, 1, 0),
	}
	e := New(DefaultConfig(), source)

	v := e.Evaluate(types.VariantOriginal, types.VariantPhase4Enhanced)
	assert.Equal(t, types.VerdictVariantRegresses, v.Kind)

	all := e.EvaluateAll(types.VariantOriginal, []types.Variant{
		types.VariantOriginal, types.VariantPhase4Enhanced, types.VariantSVG,
	})
	require.Len(t, all, 2, "baseline is never compared against itself")
	assert.Equal(t, types.VerdictInsufficientData, all[1].Kind)
}

func TestSummarize(t *testing.T) {
	regress := types.Verdict{Kind: types.VerdictVariantRegresses, Variant: "a", Confidence: 97}
	insufficient := types.Verdict{Kind: types.VerdictInsufficientData, Variant: "b"}
	weakWin := types.Verdict{Kind: types.VerdictVariantWins, Variant: "c", Confidence: 96}
	strongWin := types.Verdict{Kind: types.VerdictVariantWins, Variant: "d", Confidence: 99.5}
	same := types.Verdict{Kind: types.VerdictNoDifference, Variant: "e", Confidence: 40}

	assert.Equal(t, regress, Summarize([]types.Verdict{same, weakWin, regress, insufficient}))
	assert.Equal(t, insufficient, Summarize([]types.Verdict{same, strongWin, insufficient}))
	assert.Equal(t, strongWin, Summarize([]types.Verdict{weakWin, same, strongWin}))
	assert.Equal(t, same, Summarize([]types.Verdict{same}))
	assert.Equal(t, types.VerdictInsufficientData, Summarize(nil).Kind)
}

func TestTwoProportionZTest(t *testing.T) {
	z, p := TwoProportionZTest(0, 0, 5, 10)
	assert.Zero(t, z)
	assert.Equal(t, 1.0, p)

	z, p = TwoProportionZTest(0, 100, 0, 100)
	assert.Zero(t, z)
	assert.Equal(t, 1.0, p)

	// 15% vs 10% at n=1000 each: z ≈ 3.38
	z, p = TwoProportionZTest(150, 1000, 100, 1000)
	assert.InDelta(t, 3.38, z, 0.01)
	assert.Less(t, p, 0.001)

	// Successes above trials are clamped rather than producing rates above 1
	z, _ = TwoProportionZTest(300, 100, 100, 100)
	assert.Zero(t, z)
}

func TestNewAppliesDefaults(t *testing.T) {
	e := New(Config{}, mapSource{})
	assert.Equal(t, int64(100), e.Config().MinSamples)
	assert.Equal(t, 0.95, e.Config().ConfidenceLevel)
}
