package rollout

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/rollout/pkg/events"
	"github.com/cuemby/rollout/pkg/log"
	"github.com/cuemby/rollout/pkg/metrics"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotReady is wrapped by *NotReadyError when readiness gates fail
	ErrNotReady = errors.New("phase not ready to advance")

	// ErrFinalPhase is returned when advancing past the last phase
	ErrFinalPhase = errors.New("already at final phase")

	// ErrHeld is returned when advancing while a rollback hold is active
	ErrHeld = errors.New("advancement held after rollback")
)

// NotReadyError reports every readiness gate that refused an advance
type NotReadyError struct {
	Phase    string
	Reasons  []string
	Verdicts []types.Verdict
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("phase %q not ready to advance: %s", e.Phase, strings.Join(e.Reasons, "; "))
}

func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}

// SnapshotSource provides point-in-time copies of a variant's metrics
type SnapshotSource interface {
	Snapshot(variant types.Variant) types.PerformanceMetrics
}

// Evaluator compares a candidate variant against the baseline
type Evaluator interface {
	Evaluate(baseline, candidate types.Variant) types.Verdict
}

// AuditStore persists audit entries
type AuditStore interface {
	AppendAudit(entry types.AuditEntry) error
}

// Publisher receives planner events
type Publisher interface {
	Publish(event *events.Event)
}

// Status is a read-only view of the planner state
type Status struct {
	Phase          types.RolloutPhase `json:"phase"`
	Index          int                `json:"index"`
	Total          int                `json:"total"`
	Held           bool               `json:"held"`
	HoldReason     string             `json:"hold_reason,omitempty"`
	PhaseStartedAt time.Time          `json:"phase_started_at"`
	Final          bool               `json:"final"`
}

// Planner is the rollout phase state machine. The phase pointer starts at
// the first phase, moves forward one phase at a time through Advance, and
// returns to the first phase on Rollback. All transitions are serialized by
// a single mutex.
type Planner struct {
	mu           sync.RWMutex
	phases       []types.RolloutPhase
	baseline     types.Variant
	index        int
	phaseStarted time.Time
	held         bool
	holdReason   string
	audit        []types.AuditEntry

	source    SnapshotSource
	evaluator Evaluator
	store     AuditStore
	publisher Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures a Planner
type Option func(*Planner)

// WithClock overrides the planner's time source
func WithClock(now func() time.Time) Option {
	return func(p *Planner) {
		p.now = now
	}
}

// WithStore persists every audit entry
func WithStore(store AuditStore) Option {
	return func(p *Planner) {
		p.store = store
	}
}

// WithPublisher publishes transitions as events
func WithPublisher(pub Publisher) Option {
	return func(p *Planner) {
		p.publisher = pub
	}
}

// NewPlanner validates the plan and creates a planner positioned at the
// first phase
func NewPlanner(phases []types.RolloutPhase, baseline types.Variant, source SnapshotSource, evaluator Evaluator, opts ...Option) (*Planner, error) {
	if err := ValidatePlan(phases, baseline); err != nil {
		return nil, err
	}

	p := &Planner{
		phases:    clonePhases(phases),
		baseline:  baseline,
		source:    source,
		evaluator: evaluator,
		now:       time.Now,
		logger:    log.WithComponent("rollout"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.phaseStarted = p.now()
	p.updateGauges()

	return p, nil
}

// Advance moves to the next phase when the current phase's readiness gates
// all pass: minimum duration elapsed, minimum impressions for every active
// variant, and no challenger evaluated as regressing. Missing data refuses
// the advance.
func (p *Planner) Advance(source types.TriggerSource) (types.RolloutPhase, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.phases[p.index]

	if p.held {
		err := fmt.Errorf("%w: %s", ErrHeld, p.holdReason)
		p.refuse(source, current, err)
		return current, err
	}
	if p.index == len(p.phases)-1 {
		p.refuse(source, current, ErrFinalPhase)
		return current, ErrFinalPhase
	}

	if nr := p.readiness(current); nr != nil {
		p.refuse(source, current, nr)
		return current, nr
	}

	p.index++
	p.phaseStarted = p.now()
	next := p.phases[p.index]

	p.record(types.AuditAdvance, source, current.Name, next.Name, "")
	p.updateGauges()
	p.publish(events.EventPhaseAdvanced, fmt.Sprintf("advanced from %s to %s", current.Name, next.Name), map[string]string{
		"from":            current.Name,
		"to":              next.Name,
		"traffic_percent": fmt.Sprintf("%.2f", next.TrafficPercent),
		"source":          string(source),
	})

	phaseLog := log.WithPhase(p.logger, next.Name)
	phaseLog.Info().
		Str("from", current.Name).
		Float64("traffic_percent", next.TrafficPercent).
		Str("source", string(source)).
		Msg("Phase advanced")

	return next, nil
}

// Rollback returns to the first phase and holds advancement until
// ClearHold. At the first phase it changes nothing but still records the
// reason.
func (p *Planner) Rollback(reason string, source types.TriggerSource) types.AuditEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	from := p.phases[p.index]
	transitioned := p.index != 0

	p.held = true
	p.holdReason = reason
	if transitioned {
		p.index = 0
		p.phaseStarted = p.now()
	}

	entry := p.record(types.AuditRollback, source, from.Name, p.phases[0].Name, reason)
	p.updateGauges()
	p.publish(events.EventRolledBack, reason, map[string]string{
		"from":         from.Name,
		"to":           p.phases[0].Name,
		"source":       string(source),
		"transitioned": fmt.Sprintf("%t", transitioned),
	})

	phaseLog := log.WithPhase(p.logger, p.phases[0].Name)
	phaseLog.Warn().
		Str("from", from.Name).
		Str("source", string(source)).
		Bool("transitioned", transitioned).
		Str("reason", reason).
		Msg("Rollout rolled back")

	return entry
}

// ClearHold re-enables advancement after a rollback
func (p *Planner) ClearHold(reason string) types.AuditEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.phases[p.index].Name
	p.held = false
	p.holdReason = ""

	entry := p.record(types.AuditClearHold, types.SourceManual, current, current, reason)
	p.updateGauges()
	p.publish(events.EventHoldCleared, reason, map[string]string{"phase": current})

	phaseLog := log.WithPhase(p.logger, current)
	phaseLog.Info().Str("reason", reason).Msg("Rollback hold cleared")
	return entry
}

// Resume restores the phase pointer, hold state and audit trail from a
// persisted audit log, oldest first. Entries naming phases that are no
// longer in the plan do not move the pointer.
func (p *Planner) Resume(entries []types.AuditEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entries {
		switch e.Action {
		case types.AuditAdvance, types.AuditRollback:
			if i := p.indexOf(e.ToPhase); i >= 0 && i != p.index {
				p.index = i
				p.phaseStarted = e.Timestamp
			}
		}

		switch e.Action {
		case types.AuditRollback:
			p.held = true
			p.holdReason = e.Reason
		case types.AuditClearHold:
			p.held = false
			p.holdReason = ""
		}
	}

	restored := make([]types.AuditEntry, 0, len(entries)+len(p.audit))
	restored = append(restored, entries...)
	p.audit = append(restored, p.audit...)
	p.updateGauges()

	phaseLog := log.WithPhase(p.logger, p.phases[p.index].Name)
	phaseLog.Info().
		Int("entries", len(entries)).
		Bool("held", p.held).
		Msg("Planner state resumed")
}

// Current returns the active phase
func (p *Planner) Current() types.RolloutPhase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clonePhase(p.phases[p.index])
}

// Index returns the zero-based index of the active phase
func (p *Planner) Index() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index
}

// ActiveConfig returns a copy of the active phase's weight table
func (p *Planner) ActiveConfig() types.ExperimentConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phases[p.index].Config.Clone()
}

// Held reports whether a rollback hold is active
func (p *Planner) Held() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.held
}

// Baseline returns the baseline variant
func (p *Planner) Baseline() types.Variant {
	return p.baseline
}

// Challengers returns the active phase's non-zero variants other than the baseline
func (p *Planner) Challengers() []types.Variant {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.challengers(p.phases[p.index])
}

// Phases returns a copy of the full plan
func (p *Planner) Phases() []types.RolloutPhase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clonePhases(p.phases)
}

// Audit returns a copy of the audit trail, oldest first
func (p *Planner) Audit() []types.AuditEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]types.AuditEntry, len(p.audit))
	copy(out, p.audit)
	return out
}

// Status returns a consistent view of the planner state
func (p *Planner) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Status{
		Phase:          clonePhase(p.phases[p.index]),
		Index:          p.index,
		Total:          len(p.phases),
		Held:           p.held,
		HoldReason:     p.holdReason,
		PhaseStartedAt: p.phaseStarted,
		Final:          p.index == len(p.phases)-1,
	}
}

// readiness evaluates the gates of phase; caller holds p.mu
func (p *Planner) readiness(phase types.RolloutPhase) *NotReadyError {
	nr := &NotReadyError{Phase: phase.Name}

	if elapsed := p.now().Sub(p.phaseStarted); elapsed < phase.MinDuration {
		nr.Reasons = append(nr.Reasons, fmt.Sprintf("active for %s, needs %s", elapsed.Round(time.Second), phase.MinDuration))
	}

	for _, v := range phase.Config.ActiveVariants() {
		if m := p.source.Snapshot(v); m.Impressions < phase.MinSamples {
			nr.Reasons = append(nr.Reasons, fmt.Sprintf("%s has %d impressions, needs %d", v, m.Impressions, phase.MinSamples))
		}
	}

	for _, c := range p.challengers(phase) {
		verdict := p.evaluator.Evaluate(p.baseline, c)
		nr.Verdicts = append(nr.Verdicts, verdict)
		switch verdict.Kind {
		case types.VerdictInsufficientData:
			nr.Reasons = append(nr.Reasons, fmt.Sprintf("%s: insufficient data", c))
		case types.VerdictVariantRegresses:
			nr.Reasons = append(nr.Reasons, fmt.Sprintf("%s regresses: %s", c, verdict.Reason))
		}
	}

	if len(nr.Reasons) == 0 {
		return nil
	}
	return nr
}

func (p *Planner) indexOf(name string) int {
	for i, phase := range p.phases {
		if phase.Name == name {
			return i
		}
	}
	return -1
}

func (p *Planner) challengers(phase types.RolloutPhase) []types.Variant {
	var out []types.Variant
	for _, v := range phase.Config.ActiveVariants() {
		if v != p.baseline {
			out = append(out, v)
		}
	}
	return out
}

// refuse records a refused advance. Automatic attempts are only counted so
// a healthy-but-not-ready phase does not flood the audit trail.
func (p *Planner) refuse(source types.TriggerSource, phase types.RolloutPhase, err error) {
	metrics.PhaseTransitionsTotal.WithLabelValues(string(types.AuditAdvanceRefused), string(source)).Inc()
	phaseLog := log.WithPhase(p.logger, phase.Name)
	phaseLog.Debug().Str("source", string(source)).Err(err).Msg("Advance refused")

	if source == types.SourceAuto {
		return
	}
	p.record(types.AuditAdvanceRefused, source, phase.Name, phase.Name, err.Error())
	p.publish(events.EventAdvanceRefused, err.Error(), map[string]string{"phase": phase.Name})
}

// record appends an audit entry; caller holds p.mu
func (p *Planner) record(action types.AuditAction, source types.TriggerSource, from, to, reason string) types.AuditEntry {
	entry := types.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Source:    source,
		FromPhase: from,
		ToPhase:   to,
		Reason:    reason,
		Timestamp: p.now(),
	}
	p.audit = append(p.audit, entry)

	if action != types.AuditAdvanceRefused {
		metrics.PhaseTransitionsTotal.WithLabelValues(string(action), string(source)).Inc()
	}

	if p.store != nil {
		if err := p.store.AppendAudit(entry); err != nil {
			p.logger.Warn().Err(err).Str("action", string(action)).Msg("Failed to persist audit entry")
		}
	}
	return entry
}

func (p *Planner) publish(t events.EventType, msg string, meta map[string]string) {
	if p.publisher == nil {
		return
	}
	p.publisher.Publish(&events.Event{Type: t, Message: msg, Metadata: meta, Timestamp: p.now()})
}

func (p *Planner) updateGauges() {
	metrics.PhaseIndex.Set(float64(p.index))
	metrics.PhaseTrafficPercent.Set(p.phases[p.index].TrafficPercent)
	if p.held {
		metrics.PhaseHeld.Set(1)
	} else {
		metrics.PhaseHeld.Set(0)
	}
}

func clonePhase(phase types.RolloutPhase) types.RolloutPhase {
	phase.Config = phase.Config.Clone()
	return phase
}

func clonePhases(phases []types.RolloutPhase) []types.RolloutPhase {
	out := make([]types.RolloutPhase, len(phases))
	for i, phase := range phases {
		out[i] = clonePhase(phase)
	}
	return out
}
