package recorder

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/rollout/pkg/metrics"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCounters(t *testing.T) {
	r := New()
	v := types.VariantPhase4Enhanced

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Record(v, types.EventImpression, 0))
	}
	require.NoError(t, r.Record(v, types.EventInteraction, 0))
	require.NoError(t, r.Record(v, types.EventInteraction, 0))
	require.NoError(t, r.Record(v, types.EventError, 0))
	require.NoError(t, r.Record(v, types.EventLatency, 0.2))
	require.NoError(t, r.Record(v, types.EventLatency, 0.4))

	m := r.Snapshot(v)
	assert.Equal(t, v, m.Variant)
	assert.Equal(t, int64(10), m.Impressions)
	assert.Equal(t, int64(2), m.Interactions)
	assert.Equal(t, int64(1), m.Errors)
	assert.Equal(t, int64(2), m.LatencyCount)
	assert.InDelta(t, 0.6, m.LatencySum, 1e-9)
	assert.InDelta(t, 0.2, m.LatencySumSquares, 1e-9)
	assert.InDelta(t, 0.2, m.ClickThroughRate(), 1e-9)
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	r := New()

	err := r.Record(types.VariantSVG, types.EventKind("scroll"), 0)
	assert.ErrorIs(t, err, ErrInvalidKind)

	for _, value := range []float64{-1, math.NaN(), math.Inf(1)} {
		err = r.Record(types.VariantSVG, types.EventLatency, value)
		assert.ErrorIs(t, err, ErrInvalidValue)
	}

	assert.Empty(t, r.Variants(), "rejected events must not create buckets")
}

func TestRecordRejectsUnknownVariant(t *testing.T) {
	r := New()
	before := testutil.ToFloat64(metrics.EventsRejectedTotal.WithLabelValues("variant"))

	for _, v := range []types.Variant{"", "legacy-canvas", "junk-1"} {
		err := r.Record(v, types.EventImpression, 0)
		assert.ErrorIs(t, err, ErrInvalidVariant, "variant %q", v)
	}

	assert.Empty(t, r.Variants(), "unknown variants must not create buckets")
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.EventsRejectedTotal.WithLabelValues("variant")))

	require.NoError(t, r.Record(types.VariantTesting, types.EventImpression, 0))
	assert.Equal(t, []types.Variant{types.VariantTesting}, r.Variants())
}

func TestRestoreSkipsUnknownVariants(t *testing.T) {
	r := New()
	r.Restore([]types.PerformanceMetrics{
		{Variant: types.VariantSVG, Impressions: 4},
		{Variant: "legacy-canvas", Impressions: 9},
	})
	assert.Equal(t, []types.Variant{types.VariantSVG}, r.Variants())
}

func TestSnapshotUnknownVariant(t *testing.T) {
	r := New()
	m := r.Snapshot(types.VariantEnhancedPNG)
	assert.Equal(t, types.PerformanceMetrics{Variant: types.VariantEnhancedPNG}, m)
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Record(types.VariantSVG, types.EventImpression, 0))

	snap := r.Snapshot(types.VariantSVG)
	snap.Impressions = 1000

	assert.Equal(t, int64(1), r.Snapshot(types.VariantSVG).Impressions)
}

func TestRecordMonotonic(t *testing.T) {
	r := New()
	const n = 250
	for i := 1; i <= n; i++ {
		require.NoError(t, r.Record(types.VariantOriginal, types.EventImpression, 0))
		assert.Equal(t, int64(i), r.Snapshot(types.VariantOriginal).Impressions)
	}
}

func TestRecordConcurrentNoLostUpdates(t *testing.T) {
	r := New()
	const writers = 2
	const perWriter = 1000

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = r.Record(types.VariantPhase4Enhanced, types.EventImpression, 0)
				_ = r.Record(types.VariantPhase4Enhanced, types.EventLatency, 0.1)
			}
		}()
	}

	// Readers must never observe a latency count and sum from different updates
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			m := r.Snapshot(types.VariantPhase4Enhanced)
			assert.InDelta(t, 0.1*float64(m.LatencyCount), m.LatencySum, 1e-6)
		}
	}()

	wg.Wait()
	<-done

	m := r.Snapshot(types.VariantPhase4Enhanced)
	assert.Equal(t, int64(writers*perWriter), m.Impressions)
	assert.Equal(t, int64(writers*perWriter), m.LatencyCount)
}

func TestEventTimestamps(t *testing.T) {
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	current := base
	r := New(WithClock(func() time.Time { return current }))

	require.NoError(t, r.Record(types.VariantSVG, types.EventImpression, 0))
	current = base.Add(time.Minute)
	require.NoError(t, r.Record(types.VariantSVG, types.EventError, 0))

	m := r.Snapshot(types.VariantSVG)
	assert.Equal(t, base, m.FirstEventAt)
	assert.Equal(t, base.Add(time.Minute), m.LastEventAt)
}

func TestSnapshotAllResetRestore(t *testing.T) {
	r := New()
	require.NoError(t, r.Record(types.VariantSVG, types.EventImpression, 0))
	require.NoError(t, r.Record(types.VariantOriginal, types.EventImpression, 0))

	all := r.SnapshotAll()
	require.Len(t, all, 2)
	assert.Equal(t, types.VariantOriginal, all[0].Variant)
	assert.Equal(t, types.VariantSVG, all[1].Variant)

	r.Reset()
	assert.Empty(t, r.SnapshotAll())

	r.Restore(all)
	assert.Equal(t, int64(1), r.Snapshot(types.VariantSVG).Impressions)

	// Restored buckets keep accumulating
	require.NoError(t, r.Record(types.VariantSVG, types.EventImpression, 0))
	assert.Equal(t, int64(2), r.Snapshot(types.VariantSVG).Impressions)
}
