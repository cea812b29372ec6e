package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/rollout/pkg/assign"
	"github.com/cuemby/rollout/pkg/config"
	"github.com/cuemby/rollout/pkg/events"
	"github.com/cuemby/rollout/pkg/log"
	"github.com/cuemby/rollout/pkg/metrics"
	"github.com/cuemby/rollout/pkg/monitor"
	"github.com/cuemby/rollout/pkg/recorder"
	"github.com/cuemby/rollout/pkg/rollout"
	"github.com/cuemby/rollout/pkg/significance"
	"github.com/cuemby/rollout/pkg/storage"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/rs/zerolog"
)

// DashboardLimit bounds the alerts and audit entries in a dashboard snapshot
const DashboardLimit = 20

// Engine wires the recorder, evaluator, planner and monitor together and is
// the single entry point used by the API and CLI
type Engine struct {
	cfg config.Config

	recorder  *recorder.Recorder
	evaluator *significance.Evaluator
	planner   *rollout.Planner
	monitor   *monitor.Monitor
	collector *metrics.Collector
	broker    *events.Broker
	store     storage.Store

	now    func() time.Time
	logger zerolog.Logger

	cancel    context.CancelFunc
	persistCh chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures an Engine
type Option func(*options)

type options struct {
	now   func() time.Time
	store storage.Store
}

// WithClock overrides the time source of every component
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithStore uses store instead of opening one under cfg.Storage.DataDir
func WithStore(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// New validates cfg and builds an engine. Persisted metrics and planner
// state are restored from the store when one is configured.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	store := o.store
	if store == nil && cfg.Storage.DataDir != "" {
		bolt, err := storage.NewBoltStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		store = bolt
	}

	e := &Engine{
		cfg:       cfg,
		store:     store,
		now:       o.now,
		logger:    log.WithComponent("engine"),
		persistCh: make(chan struct{}),
	}

	e.broker = events.NewBroker()
	e.recorder = recorder.New(recorder.WithClock(o.now))
	e.evaluator = significance.New(cfg.Evaluator, e.recorder)

	plannerOpts := []rollout.Option{rollout.WithClock(o.now), rollout.WithPublisher(e.broker)}
	monitorOpts := []monitor.Option{monitor.WithClock(o.now), monitor.WithPublisher(e.broker)}
	if store != nil {
		plannerOpts = append(plannerOpts, rollout.WithStore(store))
		monitorOpts = append(monitorOpts, monitor.WithStore(store))
	}

	planner, err := rollout.NewPlanner(cfg.Phases, cfg.Experiment.Baseline, e.recorder, e.evaluator, plannerOpts...)
	if err != nil {
		e.closeStore()
		return nil, err
	}
	e.planner = planner
	e.monitor = monitor.NewMonitor(cfg.Monitor, planner, e.recorder, monitorOpts...)
	e.collector = metrics.NewCollector(e.recorder, cfg.Metrics.CollectInterval)

	if err := e.restore(); err != nil {
		e.closeStore()
		return nil, err
	}

	metrics.RegisterComponent("recorder", true, "ready")
	metrics.RegisterComponent("rollout", true, fmt.Sprintf("phase %s", planner.Current().Name))

	e.logger.Info().
		Str("experiment", cfg.Experiment.Name).
		Str("baseline", string(cfg.Experiment.Baseline)).
		Int("phases", len(cfg.Phases)).
		Bool("persistent", store != nil).
		Msg("Engine created")

	return e, nil
}

func (e *Engine) restore() error {
	if e.store == nil {
		return nil
	}

	snapshots, err := e.store.LoadMetrics()
	if err != nil {
		return fmt.Errorf("failed to load metrics: %w", err)
	}
	e.recorder.Restore(snapshots)

	audit, err := e.store.ListAudit()
	if err != nil {
		return fmt.Errorf("failed to load audit log: %w", err)
	}
	if len(audit) > 0 {
		e.planner.Resume(audit)
	}
	return nil
}

// Start launches the broker, monitor, gauge collector and periodic metric
// persistence. Safe to call more than once.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, e.cancel = context.WithCancel(ctx)

		e.broker.Start()
		e.collector.Start()
		e.monitor.Start(ctx)

		if e.store != nil && e.cfg.Storage.SnapshotInterval > 0 {
			e.wg.Add(1)
			go e.persistLoop(ctx)
		}

		e.logger.Info().Msg("Engine started")
	})
}

// Stop stops background work, persists metrics and closes the store. Safe
// to call more than once.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		close(e.persistCh)
		e.monitor.Stop()
		e.collector.Stop()
		e.wg.Wait()

		if perr := e.PersistMetrics(); perr != nil {
			err = perr
		}
		e.broker.Stop()

		if cerr := e.closeStore(); cerr != nil && err == nil {
			err = cerr
		}
		e.logger.Info().Msg("Engine stopped")
	})
	return err
}

func (e *Engine) persistLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Storage.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.PersistMetrics(); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to persist metrics")
			}
		case <-ctx.Done():
			return
		case <-e.persistCh:
			return
		}
	}
}

// PersistMetrics writes the current recorder snapshots to the store
func (e *Engine) PersistMetrics() error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveMetrics(e.recorder.SnapshotAll()); err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}
	return nil
}

func (e *Engine) closeStore() error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// Assignment is the result of assigning a segment
type Assignment struct {
	SegmentKey string           `json:"segment_key"`
	Variant    types.Variant    `json:"variant"`
	RenderMode types.RenderMode `json:"render_mode"`
	Phase      string           `json:"phase"`
}

// GetAssignedVariant returns the variant for segmentKey under the active
// phase's weights. The same key always maps to the same variant while the
// phase is unchanged.
func (e *Engine) GetAssignedVariant(segmentKey string) types.Variant {
	return assign.Assign(segmentKey, e.planner.ActiveConfig())
}

// Assign returns the full assignment for segmentKey. An empty key is
// replaced by a freshly generated one.
func (e *Engine) Assign(segmentKey string) Assignment {
	if segmentKey == "" {
		segmentKey = assign.NewSegmentKey()
	}
	phase := e.planner.Current()
	v := assign.Assign(segmentKey, phase.Config)
	segmentLog := log.WithSegment(e.logger, segmentKey)
	segmentLog.Debug().
		Str("variant", string(v)).
		Str("phase", phase.Name).
		Msg("Segment assigned")
	return Assignment{
		SegmentKey: segmentKey,
		Variant:    v,
		RenderMode: assign.VariantToRenderMode(v),
		Phase:      phase.Name,
	}
}

// RenderMode returns the marker render mode for v
func (e *Engine) RenderMode(v types.Variant) types.RenderMode {
	return assign.VariantToRenderMode(v)
}

// RecordEvent records one UI event for variant
func (e *Engine) RecordEvent(variant types.Variant, kind types.EventKind, value float64) error {
	return e.recorder.Record(variant, kind, value)
}

// Advance asks the planner to move to the next phase
func (e *Engine) Advance(source types.TriggerSource) (types.RolloutPhase, error) {
	phase, err := e.planner.Advance(source)
	if err == nil {
		metrics.UpdateComponent("rollout", true, fmt.Sprintf("phase %s", phase.Name))
	}
	return phase, err
}

// Rollback returns the rollout to the first phase and holds it there
func (e *Engine) Rollback(reason string, source types.TriggerSource) types.AuditEntry {
	entry := e.planner.Rollback(reason, source)
	metrics.UpdateComponent("rollout", true, fmt.Sprintf("phase %s (held)", entry.ToPhase))
	return entry
}

// ClearHold re-enables advancement after a rollback
func (e *Engine) ClearHold(reason string) types.AuditEntry {
	entry := e.planner.ClearHold(reason)
	metrics.UpdateComponent("rollout", true, fmt.Sprintf("phase %s", entry.ToPhase))
	return entry
}

// Status returns the planner state
func (e *Engine) Status() rollout.Status {
	return e.planner.Status()
}

// CheckNow runs one monitor pass immediately
func (e *Engine) CheckNow() []types.Alert {
	return e.monitor.Check()
}

// Alerts returns up to limit of the most recent alerts
func (e *Engine) Alerts(limit int) []types.Alert {
	return e.monitor.Alerts(limit)
}

// Events returns the broker carrying planner and monitor events
func (e *Engine) Events() *events.Broker {
	return e.broker
}

// Config returns the engine configuration
func (e *Engine) Config() config.Config {
	return e.cfg
}

// VariantSummary is one variant's row in the dashboard
type VariantSummary struct {
	types.PerformanceMetrics
	Weight           float64          `json:"weight"`
	RenderMode       types.RenderMode `json:"render_mode"`
	ClickThroughRate float64          `json:"ctr"`
	ErrorRate        float64          `json:"error_rate"`
	LatencyMean      float64          `json:"latency_mean"`
}

// Dashboard is a consistent read-only view of the experiment
type Dashboard struct {
	Experiment   string             `json:"experiment"`
	Baseline     types.Variant      `json:"baseline"`
	PerVariant   []VariantSummary   `json:"per_variant"`
	Verdict      types.Verdict      `json:"verdict"`
	Verdicts     []types.Verdict    `json:"verdicts"`
	CurrentPhase types.RolloutPhase `json:"current_phase"`
	PhaseIndex   int                `json:"phase_index"`
	PhaseCount   int                `json:"phase_count"`
	Held         bool               `json:"held"`
	HoldReason   string             `json:"hold_reason,omitempty"`
	RecentAlerts []types.Alert      `json:"recent_alerts"`
	Audit        []types.AuditEntry `json:"audit"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// GetDashboardSnapshot assembles per-variant metrics, the current verdicts
// and the rollout state
func (e *Engine) GetDashboardSnapshot() Dashboard {
	st := e.planner.Status()
	baseline := e.planner.Baseline()

	var challengers []types.Variant
	for _, v := range st.Phase.Config.ActiveVariants() {
		if v != baseline {
			challengers = append(challengers, v)
		}
	}
	verdicts := e.evaluator.EvaluateAll(baseline, challengers)

	audit := e.planner.Audit()
	if len(audit) > DashboardLimit {
		audit = audit[len(audit)-DashboardLimit:]
	}

	return Dashboard{
		Experiment:   e.cfg.Experiment.Name,
		Baseline:     baseline,
		PerVariant:   e.variantSummaries(st.Phase.Config),
		Verdict:      significance.Summarize(verdicts),
		Verdicts:     verdicts,
		CurrentPhase: st.Phase,
		PhaseIndex:   st.Index,
		PhaseCount:   st.Total,
		Held:         st.Held,
		HoldReason:   st.HoldReason,
		RecentAlerts: e.monitor.Alerts(DashboardLimit),
		Audit:        audit,
		GeneratedAt:  e.now(),
	}
}

// variantSummaries lists the weight table's variants in table order, then
// any other variant with recorded data
func (e *Engine) variantSummaries(cfg types.ExperimentConfig) []VariantSummary {
	seen := make(map[types.Variant]bool)
	var order []types.Variant
	for _, w := range cfg.Weights {
		if !seen[w.Variant] {
			seen[w.Variant] = true
			order = append(order, w.Variant)
		}
	}

	var extra []types.Variant
	for _, v := range e.recorder.Variants() {
		if !seen[v] {
			seen[v] = true
			extra = append(extra, v)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	order = append(order, extra...)

	out := make([]VariantSummary, 0, len(order))
	for _, v := range order {
		m := e.recorder.Snapshot(v)
		out = append(out, VariantSummary{
			PerformanceMetrics: m,
			Weight:             cfg.WeightOf(v),
			RenderMode:         assign.VariantToRenderMode(v),
			ClickThroughRate:   m.ClickThroughRate(),
			ErrorRate:          m.ErrorRate(),
			LatencyMean:        m.LatencyMean(),
		})
	}
	return out
}
