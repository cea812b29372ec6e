package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/rollout/pkg/config"
	"github.com/cuemby/rollout/pkg/recorder"
	"github.com/cuemby/rollout/pkg/rollout"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(dataDir string) config.Config {
	cfg := config.Default()
	cfg.Storage.DataDir = dataDir
	for i := range cfg.Phases {
		cfg.Phases[i].MinDuration = 0
	}
	return cfg
}

func newTestEngine(t *testing.T, dataDir string) *Engine {
	t.Helper()
	e, err := New(testConfig(dataDir))
	require.NoError(t, err)
	return e
}

// fill records n impressions, n/10 interactions and errs errors
func fill(t *testing.T, e *Engine, v types.Variant, n, errs int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.RecordEvent(v, types.EventImpression, 0))
		if i%10 == 0 {
			require.NoError(t, e.RecordEvent(v, types.EventInteraction, 0))
		}
	}
	for i := 0; i < errs; i++ {
		require.NoError(t, e.RecordEvent(v, types.EventError, 0))
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.Phases[0].Config.Weights[0].Weight = 50

	_, err := New(cfg)
	var ve *config.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestAssignment(t *testing.T) {
	e := newTestEngine(t, "")

	v := e.GetAssignedVariant("segment-42")
	assert.Equal(t, v, e.GetAssignedVariant("segment-42"))
	assert.Contains(t, []types.Variant{types.VariantOriginal, types.VariantPhase4Enhanced}, v)

	a := e.Assign("segment-42")
	assert.Equal(t, v, a.Variant)
	assert.Equal(t, "canary", a.Phase)
	assert.Equal(t, e.RenderMode(v), a.RenderMode)

	generated := e.Assign("")
	assert.NotEmpty(t, generated.SegmentKey)
}

func TestRecordEventRejectsInvalid(t *testing.T) {
	e := newTestEngine(t, "")

	err := e.RecordEvent(types.VariantOriginal, "scroll", 0)
	assert.ErrorIs(t, err, recorder.ErrInvalidKind)

	err = e.RecordEvent(types.VariantOriginal, types.EventLatency, -1)
	assert.ErrorIs(t, err, recorder.ErrInvalidValue)
}

func TestAdvanceGatedOnSamples(t *testing.T) {
	e := newTestEngine(t, "")

	fill(t, e, types.VariantOriginal, 50, 0)
	fill(t, e, types.VariantPhase4Enhanced, 50, 0)

	_, err := e.Advance(types.SourceManual)
	assert.ErrorIs(t, err, rollout.ErrNotReady)
	assert.Equal(t, 0, e.Status().Index)

	fill(t, e, types.VariantOriginal, 150, 0)
	fill(t, e, types.VariantPhase4Enhanced, 150, 0)

	next, err := e.Advance(types.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, "early-adopters", next.Name)
}

func TestDashboardSnapshot(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	e, err := New(testConfig(""), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	fill(t, e, types.VariantOriginal, 20, 1)
	require.NoError(t, e.RecordEvent(types.VariantSVG, types.EventImpression, 0))

	d := e.GetDashboardSnapshot()
	assert.Equal(t, "map-markers", d.Experiment)
	assert.Equal(t, types.VariantOriginal, d.Baseline)
	assert.Equal(t, "canary", d.CurrentPhase.Name)
	assert.Equal(t, 5, d.PhaseCount)
	assert.Equal(t, now, d.GeneratedAt)

	require.Len(t, d.PerVariant, 3)
	assert.Equal(t, types.VariantOriginal, d.PerVariant[0].Variant)
	assert.Equal(t, int64(20), d.PerVariant[0].Impressions)
	assert.InDelta(t, 0.05, d.PerVariant[0].ErrorRate, 1e-9)
	assert.Equal(t, 95.0, d.PerVariant[0].Weight)
	assert.Equal(t, types.VariantPhase4Enhanced, d.PerVariant[1].Variant)
	assert.Equal(t, types.RenderModeSVGEnhanced, d.PerVariant[1].RenderMode)
	assert.Equal(t, types.VariantSVG, d.PerVariant[2].Variant, "recorded variants outside the table are listed last")

	require.Len(t, d.Verdicts, 1)
	assert.Equal(t, types.VerdictInsufficientData, d.Verdict.Kind)
}

func TestMonitorRollbackThroughEngine(t *testing.T) {
	e := newTestEngine(t, "")

	fill(t, e, types.VariantOriginal, 200, 4)
	fill(t, e, types.VariantPhase4Enhanced, 200, 4)
	_, err := e.Advance(types.SourceManual)
	require.NoError(t, err)

	fill(t, e, types.VariantPhase4Enhanced, 0, 40)

	alerts := e.CheckNow()
	require.NotEmpty(t, alerts)
	assert.Equal(t, types.SeverityCritical, alerts[0].Severity)

	st := e.Status()
	assert.Equal(t, 0, st.Index)
	assert.True(t, st.Held)

	d := e.GetDashboardSnapshot()
	assert.True(t, d.Held)
	assert.NotEmpty(t, d.RecentAlerts)

	e.ClearHold("fixed")
	assert.False(t, e.Status().Held)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	e := newTestEngine(t, dir)
	e.Start(context.Background())

	fill(t, e, types.VariantOriginal, 200, 2)
	fill(t, e, types.VariantPhase4Enhanced, 200, 2)
	_, err := e.Advance(types.SourceManual)
	require.NoError(t, err)
	e.Rollback("drill", types.SourceManual)

	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())

	restarted := newTestEngine(t, dir)
	defer restarted.Stop()

	st := restarted.Status()
	assert.Equal(t, 0, st.Index)
	assert.True(t, st.Held)
	assert.Equal(t, "drill", st.HoldReason)

	d := restarted.GetDashboardSnapshot()
	require.NotEmpty(t, d.PerVariant)
	assert.Equal(t, int64(200), d.PerVariant[0].Impressions)
	assert.Len(t, d.Audit, 2)
}
