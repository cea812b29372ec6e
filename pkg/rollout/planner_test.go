package rollout

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/rollout/pkg/events"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu   sync.Mutex
	data map[types.Variant]types.PerformanceMetrics
}

func newFakeSource() *fakeSource {
	return &fakeSource{data: make(map[types.Variant]types.PerformanceMetrics)}
}

func (s *fakeSource) set(v types.Variant, impressions int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[v] = types.PerformanceMetrics{Variant: v, Impressions: impressions}
}

func (s *fakeSource) Snapshot(v types.Variant) types.PerformanceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.data[v]
	m.Variant = v
	return m
}

type fakeEvaluator struct {
	mu   sync.Mutex
	kind types.VerdictKind
}

func (e *fakeEvaluator) setKind(k types.VerdictKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kind = k
}

func (e *fakeEvaluator) Evaluate(baseline, candidate types.Variant) types.Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.Verdict{Kind: e.kind, Baseline: baseline, Variant: candidate, Reason: "fixture"}
}

type memStore struct {
	mu      sync.Mutex
	entries []types.AuditEntry
}

func (s *memStore) AppendAudit(entry types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func phase(name string, traffic float64, minSamples int64, minDuration time.Duration) types.RolloutPhase {
	return types.RolloutPhase{
		Name:           name,
		TrafficPercent: traffic,
		MinSamples:     minSamples,
		MinDuration:    minDuration,
		Config: types.ExperimentConfig{Weights: []types.WeightEntry{
			{Variant: types.VariantOriginal, Weight: 100 - traffic},
			{Variant: types.VariantPhase4Enhanced, Weight: traffic},
		}},
		Thresholds: types.Thresholds{MaxErrorRateDelta: 0.05, MaxLatencyRegression: 0.5},
	}
}

func testPhases() []types.RolloutPhase {
	return []types.RolloutPhase{
		phase("canary", 5, 100, 0),
		phase("early", 20, 100, 0),
		phase("full", 100, 0, 0),
	}
}

type fixture struct {
	planner *Planner
	source  *fakeSource
	eval    *fakeEvaluator
	store   *memStore
	clock   *fakeClock
}

func newFixture(t *testing.T, phases []types.RolloutPhase, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		source: newFakeSource(),
		eval:   &fakeEvaluator{kind: types.VerdictNoDifference},
		store:  &memStore{},
		clock:  &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)},
	}
	opts = append([]Option{WithClock(f.clock.Now), WithStore(f.store)}, opts...)

	p, err := NewPlanner(phases, types.VariantOriginal, f.source, f.eval, opts...)
	require.NoError(t, err)
	f.planner = p
	return f
}

func TestAdvanceRefusedBelowMinSamples(t *testing.T) {
	f := newFixture(t, testPhases())
	f.source.set(types.VariantOriginal, 50)
	f.source.set(types.VariantPhase4Enhanced, 50)

	_, err := f.planner.Advance(types.SourceManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)

	var nr *NotReadyError
	require.True(t, errors.As(err, &nr))
	assert.Equal(t, "canary", nr.Phase)
	assert.Len(t, nr.Reasons, 2, "both variants are below the sample floor")

	assert.Equal(t, 0, f.planner.Index(), "a refused advance must not move the pointer")

	audit := f.planner.Audit()
	require.Len(t, audit, 1)
	assert.Equal(t, types.AuditAdvanceRefused, audit[0].Action)
}

func TestAdvanceRefusedBeforeMinDuration(t *testing.T) {
	phases := testPhases()
	phases[0].MinDuration = time.Hour
	f := newFixture(t, phases)
	f.source.set(types.VariantOriginal, 500)
	f.source.set(types.VariantPhase4Enhanced, 500)

	_, err := f.planner.Advance(types.SourceManual)
	assert.ErrorIs(t, err, ErrNotReady)

	f.clock.Add(time.Hour)
	next, err := f.planner.Advance(types.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, "early", next.Name)
}

func TestAdvanceRefusedOnVerdict(t *testing.T) {
	tests := []struct {
		name string
		kind types.VerdictKind
		ok   bool
	}{
		{name: "insufficient data fails closed", kind: types.VerdictInsufficientData},
		{name: "regression", kind: types.VerdictVariantRegresses},
		{name: "no difference", kind: types.VerdictNoDifference, ok: true},
		{name: "win", kind: types.VerdictVariantWins, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testPhases())
			f.source.set(types.VariantOriginal, 500)
			f.source.set(types.VariantPhase4Enhanced, 500)
			f.eval.setKind(tt.kind)

			_, err := f.planner.Advance(types.SourceManual)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, 1, f.planner.Index())
				return
			}

			var nr *NotReadyError
			require.True(t, errors.As(err, &nr))
			require.Len(t, nr.Verdicts, 1)
			assert.Equal(t, tt.kind, nr.Verdicts[0].Kind)
			assert.Equal(t, 0, f.planner.Index())
		})
	}
}

func TestAdvanceMovesOnePhaseAndStopsAtFinal(t *testing.T) {
	f := newFixture(t, testPhases())
	f.source.set(types.VariantOriginal, 500)
	f.source.set(types.VariantPhase4Enhanced, 500)

	next, err := f.planner.Advance(types.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, "early", next.Name)
	assert.Equal(t, 20.0, f.planner.ActiveConfig().WeightOf(types.VariantPhase4Enhanced))

	next, err = f.planner.Advance(types.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, "full", next.Name)
	assert.True(t, f.planner.Status().Final)

	_, err = f.planner.Advance(types.SourceManual)
	assert.ErrorIs(t, err, ErrFinalPhase)
	assert.Equal(t, 2, f.planner.Index())
}

func TestRollbackReturnsToFirstPhaseAndHolds(t *testing.T) {
	f := newFixture(t, testPhases())
	f.source.set(types.VariantOriginal, 500)
	f.source.set(types.VariantPhase4Enhanced, 500)

	_, err := f.planner.Advance(types.SourceManual)
	require.NoError(t, err)

	entry := f.planner.Rollback("error rate spike", types.SourceMonitor)
	assert.Equal(t, types.AuditRollback, entry.Action)
	assert.Equal(t, "early", entry.FromPhase)
	assert.Equal(t, "canary", entry.ToPhase)
	assert.Equal(t, types.SourceMonitor, entry.Source)

	assert.Equal(t, 0, f.planner.Index())
	assert.True(t, f.planner.Held())

	_, err = f.planner.Advance(types.SourceAuto)
	assert.ErrorIs(t, err, ErrHeld)
	assert.Equal(t, 0, f.planner.Index())

	f.planner.ClearHold("investigated")
	assert.False(t, f.planner.Held())

	_, err = f.planner.Advance(types.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, 1, f.planner.Index())
}

func TestRollbackIdempotentAtFirstPhase(t *testing.T) {
	f := newFixture(t, testPhases())

	f.planner.Rollback("first", types.SourceManual)
	f.planner.Rollback("second", types.SourceManual)

	assert.Equal(t, 0, f.planner.Index())

	audit := f.planner.Audit()
	require.Len(t, audit, 2)
	for _, e := range audit {
		assert.Equal(t, types.AuditRollback, e.Action)
		assert.Equal(t, "canary", e.FromPhase)
		assert.Equal(t, "canary", e.ToPhase)
	}
	assert.Equal(t, "second", audit[1].Reason)
	assert.Len(t, f.store.entries, 2, "every audit entry is persisted")
}

func TestAutoRefusalsAreNotAudited(t *testing.T) {
	f := newFixture(t, testPhases())

	_, err := f.planner.Advance(types.SourceAuto)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, f.planner.Audit())
}

func TestPlannerPublishesTransitions(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	f := newFixture(t, testPhases(), WithPublisher(broker))
	f.planner.Rollback("manual drill", types.SourceManual)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventRolledBack, ev.Type)
		assert.Equal(t, "manual drill", ev.Message)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("rollback event not delivered")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	f := newFixture(t, testPhases())

	cfg := f.planner.ActiveConfig()
	cfg.Weights[0].Weight = 0
	assert.Equal(t, 95.0, f.planner.ActiveConfig().WeightOf(types.VariantOriginal))

	phases := f.planner.Phases()
	phases[0].Name = "mutated"
	assert.Equal(t, "canary", f.planner.Current().Name)

	assert.Equal(t, []types.Variant{types.VariantPhase4Enhanced}, f.planner.Challengers())
}

func TestConcurrentTransitions(t *testing.T) {
	f := newFixture(t, testPhases())
	f.source.set(types.VariantOriginal, 500)
	f.source.set(types.VariantPhase4Enhanced, 500)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.planner.Advance(types.SourceManual)
		}()
		go func() {
			defer wg.Done()
			_ = f.planner.Status()
			_ = f.planner.ActiveConfig()
		}()
	}
	wg.Wait()

	st := f.planner.Status()
	assert.Equal(t, 2, st.Index)
	assert.True(t, st.Final)
}

func TestNewPlannerRejectsInvalidPlan(t *testing.T) {
	phases := testPhases()
	phases[1].Config.Weights[1].Weight = 30

	_, err := NewPlanner(phases, types.VariantOriginal, newFakeSource(), &fakeEvaluator{})
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.NotEmpty(t, pe.Problems)
}

func TestResumeFromAudit(t *testing.T) {
	f := newFixture(t, testPhases())
	f.source.set(types.VariantOriginal, 500)
	f.source.set(types.VariantPhase4Enhanced, 500)

	_, err := f.planner.Advance(types.SourceManual)
	require.NoError(t, err)
	_, err = f.planner.Advance(types.SourceManual)
	require.NoError(t, err)
	f.planner.Rollback("latency", types.SourceMonitor)
	f.planner.ClearHold("fixed")
	_, err = f.planner.Advance(types.SourceManual)
	require.NoError(t, err)

	resumed := newFixture(t, testPhases())
	resumed.planner.Resume(f.store.entries)

	assert.Equal(t, f.planner.Index(), resumed.planner.Index())
	assert.Equal(t, 1, resumed.planner.Index())
	assert.False(t, resumed.planner.Held())
	assert.Len(t, resumed.planner.Audit(), len(f.store.entries))
}

func TestResumeKeepsHold(t *testing.T) {
	entries := []types.AuditEntry{
		{Action: types.AuditAdvance, FromPhase: "canary", ToPhase: "early"},
		{Action: types.AuditRollback, FromPhase: "early", ToPhase: "canary", Reason: "errors"},
		{Action: types.AuditAdvance, FromPhase: "canary", ToPhase: "retired-phase"},
	}

	f := newFixture(t, testPhases())
	f.planner.Resume(entries)

	st := f.planner.Status()
	assert.Equal(t, 0, st.Index)
	assert.True(t, st.Held)
	assert.Equal(t, "errors", st.HoldReason)
}
