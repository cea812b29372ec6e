package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/rollout/pkg/events"
	"github.com/cuemby/rollout/pkg/log"
	"github.com/cuemby/rollout/pkg/metrics"
	"github.com/cuemby/rollout/pkg/rollout"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MetricErrorRateDelta    = "error_rate_delta"
	MetricLatencyRegression = "latency_regression"
)

// Config holds monitor tuning
type Config struct {
	// Interval between checks
	Interval time.Duration `yaml:"interval"`

	// Cooldown suppresses repeats of the same alert. Zero disables.
	Cooldown time.Duration `yaml:"cooldown"`

	// MinImpressions a variant needs before its rates are compared
	MinImpressions int64 `yaml:"min_impressions"`

	// AutoAdvance attempts Advance on every tick without breaches
	AutoAdvance bool `yaml:"auto_advance"`

	// MaxAlerts bounds the in-memory alert log
	MaxAlerts int `yaml:"max_alerts"`
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() Config {
	return Config{
		Interval:       30 * time.Second,
		Cooldown:       5 * time.Minute,
		MinImpressions: 50,
		MaxAlerts:      200,
	}
}

// Planner is the subset of the phase planner the monitor drives
type Planner interface {
	Current() types.RolloutPhase
	Baseline() types.Variant
	Index() int
	Held() bool
	Advance(source types.TriggerSource) (types.RolloutPhase, error)
	Rollback(reason string, source types.TriggerSource) types.AuditEntry
}

// SnapshotSource provides point-in-time copies of a variant's metrics
type SnapshotSource interface {
	Snapshot(variant types.Variant) types.PerformanceMetrics
}

// AlertStore persists raised alerts
type AlertStore interface {
	AppendAlert(alert types.Alert) error
}

// Publisher receives monitor events
type Publisher interface {
	Publish(event *events.Event)
}

type alertKey struct {
	variant  types.Variant
	metric   string
	severity types.Severity
}

// Monitor periodically compares each challenger of the active phase against
// the baseline and rolls the planner back on critical breaches
type Monitor struct {
	cfg       Config
	planner   Planner
	source    SnapshotSource
	store     AlertStore
	publisher Publisher
	now       func() time.Time
	logger    zerolog.Logger

	mu        sync.Mutex
	alerts    []types.Alert
	lastFired map[alertKey]time.Time

	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock overrides the monitor's time source
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithStore persists every raised alert
func WithStore(store AlertStore) Option {
	return func(m *Monitor) {
		m.store = store
	}
}

// WithPublisher publishes alerts and lifecycle events
func WithPublisher(pub Publisher) Option {
	return func(m *Monitor) {
		m.publisher = pub
	}
}

// NewMonitor creates a new monitor. Unset config fields take their defaults.
func NewMonitor(cfg Config, planner Planner, source SnapshotSource, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MinImpressions <= 0 {
		cfg.MinImpressions = def.MinImpressions
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = def.MaxAlerts
	}

	m := &Monitor{
		cfg:       cfg,
		planner:   planner,
		source:    source,
		now:       time.Now,
		logger:    log.WithComponent("monitor"),
		lastFired: make(map[alertKey]time.Time),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the monitoring loop. It runs until Stop is called or ctx is
// cancelled. Only the first call starts a loop; a stopped monitor cannot be
// restarted.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		select {
		case <-m.stopCh:
			m.logger.Warn().Msg("Monitor already stopped, not starting")
			return
		default:
		}

		metrics.RegisterComponent("monitor", true, "running")
		m.publish(events.EventMonitorStarted, "monitor started", nil)
		m.logger.Info().Dur("interval", m.cfg.Interval).Bool("auto_advance", m.cfg.AutoAdvance).Msg("Monitor started")

		m.wg.Add(1)
		go m.run(ctx)
	})
}

// Stop stops the monitoring loop and waits for an in-flight check to
// finish. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		metrics.UpdateComponent("monitor", false, "stopped")
		m.publish(events.EventMonitorStopped, "monitor stopped", nil)
		m.logger.Info().Msg("Monitor stopped")
	})
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

// Check runs one monitoring pass and returns the alerts it raised. Alerts
// suppressed by the cool-down are not returned, but a critical breach always
// triggers rollback.
func (m *Monitor) Check() []types.Alert {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MonitorTickDuration)

	phase := m.planner.Current()
	breaches := m.evaluate(phase)

	var raised []types.Alert
	var critical []string
	for _, a := range breaches {
		if a.Severity == types.SeverityCritical {
			critical = append(critical, a.Message)
		}
		if m.suppress(a) {
			metrics.AlertsSuppressedTotal.Inc()
			continue
		}
		m.raise(a)
		raised = append(raised, a)
	}

	switch {
	case len(critical) > 0:
		if m.planner.Index() == 0 && m.planner.Held() {
			m.logger.Debug().Str("phase", phase.Name).Msg("Critical breach while already rolled back")
			break
		}
		m.planner.Rollback(strings.Join(critical, "; "), types.SourceMonitor)
	case len(breaches) == 0 && m.cfg.AutoAdvance && !m.planner.Held():
		m.autoAdvance()
	}

	metrics.UpdateComponent("monitor", true, fmt.Sprintf("last check at %s", m.now().Format(time.RFC3339)))
	return raised
}

// Alerts returns up to limit of the most recent alerts, oldest first. A
// non-positive limit returns the whole log.
func (m *Monitor) Alerts(limit int) []types.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if limit > 0 && len(m.alerts) > limit {
		start = len(m.alerts) - limit
	}
	out := make([]types.Alert, len(m.alerts)-start)
	copy(out, m.alerts[start:])
	return out
}

// Config returns the effective configuration
func (m *Monitor) Config() Config {
	return m.cfg
}

// evaluate compares every challenger of phase against the baseline
func (m *Monitor) evaluate(phase types.RolloutPhase) []types.Alert {
	baseline := m.planner.Baseline()
	base := m.source.Snapshot(baseline)
	if base.Impressions < m.cfg.MinImpressions {
		m.logger.Debug().
			Str("variant", string(baseline)).
			Int64("impressions", base.Impressions).
			Msg("Baseline below minimum impressions, skipping check")
		return nil
	}

	th := phase.Thresholds
	now := m.now()
	var out []types.Alert

	for _, v := range phase.Config.ActiveVariants() {
		if v == baseline {
			continue
		}
		cand := m.source.Snapshot(v)
		if cand.Impressions < m.cfg.MinImpressions {
			continue
		}

		delta := cand.ErrorRate() - base.ErrorRate()
		if a, ok := breach(MetricErrorRateDelta, delta, th.MaxErrorRateDelta, th.WarnErrorRateDelta); ok {
			a.Message = fmt.Sprintf("%s error rate %.4f exceeds baseline %.4f by %.4f (threshold %.4f)",
				v, cand.ErrorRate(), base.ErrorRate(), delta, a.Threshold)
			out = append(out, stamp(a, v, phase.Name, now))
		}

		if cand.LatencyCount == 0 || base.LatencyCount == 0 || base.LatencyMean() <= 0 {
			continue
		}
		regression := cand.LatencyMean()/base.LatencyMean() - 1
		if a, ok := breach(MetricLatencyRegression, regression, th.MaxLatencyRegression, th.WarnLatencyRegression); ok {
			a.Message = fmt.Sprintf("%s mean latency %.3fs is %.1f%% above baseline %.3fs (threshold %.1f%%)",
				v, cand.LatencyMean(), regression*100, base.LatencyMean(), a.Threshold*100)
			out = append(out, stamp(a, v, phase.Name, now))
		}
	}

	return out
}

// breach classifies observed against the critical and warning thresholds.
// A zero threshold is disabled.
func breach(metric string, observed, critical, warning float64) (types.Alert, bool) {
	switch {
	case critical > 0 && observed > critical:
		return types.Alert{Severity: types.SeverityCritical, Metric: metric, Observed: observed, Threshold: critical}, true
	case warning > 0 && observed > warning:
		return types.Alert{Severity: types.SeverityWarning, Metric: metric, Observed: observed, Threshold: warning}, true
	}
	return types.Alert{}, false
}

func stamp(a types.Alert, v types.Variant, phase string, now time.Time) types.Alert {
	a.ID = uuid.NewString()
	a.Variant = v
	a.Phase = phase
	a.Timestamp = now
	return a
}

// suppress reports whether an identical alert fired within the cool-down,
// and records a as fired otherwise
func (m *Monitor) suppress(a types.Alert) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := alertKey{variant: a.Variant, metric: a.Metric, severity: a.Severity}
	if last, ok := m.lastFired[key]; ok && m.cfg.Cooldown > 0 && a.Timestamp.Sub(last) < m.cfg.Cooldown {
		return true
	}
	m.lastFired[key] = a.Timestamp
	return false
}

func (m *Monitor) raise(a types.Alert) {
	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > m.cfg.MaxAlerts {
		m.alerts = append([]types.Alert(nil), m.alerts[len(m.alerts)-m.cfg.MaxAlerts:]...)
	}
	m.mu.Unlock()

	metrics.AlertsTotal.WithLabelValues(string(a.Severity), a.Metric).Inc()

	if m.store != nil {
		if err := m.store.AppendAlert(a); err != nil {
			m.logger.Warn().Err(err).Str("alert_id", a.ID).Msg("Failed to persist alert")
		}
	}

	m.publish(events.EventAlertRaised, a.Message, map[string]string{
		"severity": string(a.Severity),
		"metric":   a.Metric,
		"variant":  string(a.Variant),
		"phase":    a.Phase,
	})

	l := log.WithVariant(log.WithPhase(m.logger, a.Phase), a.Variant)
	ev := l.Warn()
	if a.Severity == types.SeverityCritical {
		ev = l.Error()
	}
	ev.Str("metric", a.Metric).
		Float64("observed", a.Observed).
		Float64("threshold", a.Threshold).
		Msg(a.Message)
}

func (m *Monitor) autoAdvance() {
	next, err := m.planner.Advance(types.SourceAuto)
	switch {
	case err == nil:
		m.logger.Info().Str("phase", next.Name).Msg("Auto-advanced to next phase")
	case errors.Is(err, rollout.ErrNotReady), errors.Is(err, rollout.ErrFinalPhase), errors.Is(err, rollout.ErrHeld):
		m.logger.Debug().Err(err).Msg("Auto-advance not possible")
	default:
		m.logger.Warn().Err(err).Msg("Auto-advance failed")
	}
}

func (m *Monitor) publish(t events.EventType, msg string, meta map[string]string) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(&events.Event{Type: t, Message: msg, Metadata: meta, Timestamp: m.now()})
}
