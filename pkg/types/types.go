package types

import (
	"math"
	"time"
)

// Variant identifies one treatment under test
type Variant string

const (
	VariantOriginal       Variant = "original"
	VariantEnhancedPNG    Variant = "enhanced-png"
	VariantSVG            Variant = "svg"
	VariantPhase4Enhanced Variant = "phase4-enhanced"

	// VariantTesting is the fallback variant handed out when no weight table applies
	VariantTesting Variant = "testing"
)

// KnownVariants lists the closed variant set in catalog order
var KnownVariants = []Variant{
	VariantOriginal,
	VariantEnhancedPNG,
	VariantSVG,
	VariantPhase4Enhanced,
	VariantTesting,
}

// Known reports whether v belongs to the closed variant set
func (v Variant) Known() bool {
	for _, k := range KnownVariants {
		if v == k {
			return true
		}
	}
	return false
}

// RenderMode is the marker rendering tag consumed by the map UI
type RenderMode string

const (
	RenderModeClassic     RenderMode = "classic"
	RenderModePNG         RenderMode = "png"
	RenderModeSVG         RenderMode = "svg"
	RenderModeSVGEnhanced RenderMode = "svg-enhanced"

	// DefaultRenderMode is used for any variant without a catalog entry
	DefaultRenderMode = RenderModeSVG
)

// EventKind classifies a recorded UI event
type EventKind string

const (
	EventImpression  EventKind = "impression"
	EventInteraction EventKind = "interaction"
	EventError       EventKind = "error"
	EventLatency     EventKind = "latency"
)

// Valid reports whether k is one of the recognised event kinds
func (k EventKind) Valid() bool {
	switch k {
	case EventImpression, EventInteraction, EventError, EventLatency:
		return true
	}
	return false
}

// WeightEntry is one row of a phase weight table
type WeightEntry struct {
	Variant Variant `json:"variant" yaml:"variant"`
	Weight  float64 `json:"weight" yaml:"weight"` // Percent of traffic, 0-100
}

// ExperimentConfig is the ordered weight table active during a phase
type ExperimentConfig struct {
	Weights []WeightEntry `json:"weights" yaml:"weights"`
}

// Total returns the sum of all weights
func (c ExperimentConfig) Total() float64 {
	total := 0.0
	for _, w := range c.Weights {
		total += w.Weight
	}
	return total
}

// WeightOf returns the weight assigned to v, or zero if v is absent
func (c ExperimentConfig) WeightOf(v Variant) float64 {
	for _, w := range c.Weights {
		if w.Variant == v {
			return w.Weight
		}
	}
	return 0
}

// ActiveVariants returns variants with a non-zero weight, in table order
func (c ExperimentConfig) ActiveVariants() []Variant {
	var out []Variant
	for _, w := range c.Weights {
		if w.Weight > 0 {
			out = append(out, w.Variant)
		}
	}
	return out
}

// Clone returns a deep copy of the weight table
func (c ExperimentConfig) Clone() ExperimentConfig {
	weights := make([]WeightEntry, len(c.Weights))
	copy(weights, c.Weights)
	return ExperimentConfig{Weights: weights}
}

// PerformanceMetrics holds the running statistics of one variant
type PerformanceMetrics struct {
	Variant           Variant   `json:"variant"`
	Impressions       int64     `json:"impressions"`
	Interactions      int64     `json:"interactions"`
	Errors            int64     `json:"errors"`
	LatencyCount      int64     `json:"latency_count"`
	LatencySum        float64   `json:"latency_sum"`
	LatencySumSquares float64   `json:"latency_sum_squares"`
	FirstEventAt      time.Time `json:"first_event_at,omitempty"`
	LastEventAt       time.Time `json:"last_event_at,omitempty"`
}

// ClickThroughRate returns interactions per impression
func (m PerformanceMetrics) ClickThroughRate() float64 {
	if m.Impressions == 0 {
		return 0
	}
	return float64(m.Interactions) / float64(m.Impressions)
}

// ErrorRate returns errors per impression
func (m PerformanceMetrics) ErrorRate() float64 {
	if m.Impressions == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Impressions)
}

// LatencyMean returns the mean latency sample, or zero without samples
func (m PerformanceMetrics) LatencyMean() float64 {
	if m.LatencyCount == 0 {
		return 0
	}
	return m.LatencySum / float64(m.LatencyCount)
}

// LatencyVariance returns the sample variance of latency
func (m PerformanceMetrics) LatencyVariance() float64 {
	if m.LatencyCount < 2 {
		return 0
	}
	n := float64(m.LatencyCount)
	mean := m.LatencySum / n
	v := (m.LatencySumSquares - n*mean*mean) / (n - 1)
	// Floating point cancellation can push a zero variance slightly negative
	return math.Max(v, 0)
}

// Thresholds configures monitor alerting and rollback for a phase
type Thresholds struct {
	// MaxErrorRateDelta is the candidate-minus-baseline error rate that triggers rollback
	MaxErrorRateDelta float64 `json:"max_error_rate_delta" yaml:"max_error_rate_delta"`

	// MaxLatencyRegression is the relative latency increase (0.25 = 25%) that triggers rollback
	MaxLatencyRegression float64 `json:"max_latency_regression" yaml:"max_latency_regression"`

	// Warning thresholds emit alerts without rolling back. Zero disables.
	WarnErrorRateDelta    float64 `json:"warn_error_rate_delta,omitempty" yaml:"warn_error_rate_delta"`
	WarnLatencyRegression float64 `json:"warn_latency_regression,omitempty" yaml:"warn_latency_regression"`
}

// RolloutPhase is one stage of the rollout plan
type RolloutPhase struct {
	Name           string           `json:"name" yaml:"name"`
	TrafficPercent float64          `json:"traffic_percent" yaml:"traffic_percent"`
	Config         ExperimentConfig `json:"config" yaml:"config"`
	MinSamples     int64            `json:"min_samples" yaml:"min_samples"`
	MinDuration    time.Duration    `json:"min_duration" yaml:"min_duration"`
	Thresholds     Thresholds       `json:"thresholds" yaml:"thresholds"`
}

// Severity of an alert
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert records a threshold breach observed by the monitor
type Alert struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Metric    string    `json:"metric"`
	Variant   Variant   `json:"variant"`
	Phase     string    `json:"phase"`
	Observed  float64   `json:"observed"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// VerdictKind classifies the outcome of a variant comparison
type VerdictKind string

const (
	VerdictInsufficientData VerdictKind = "insufficient-data"
	VerdictNoDifference     VerdictKind = "no-significant-difference"
	VerdictVariantWins      VerdictKind = "variant-wins"
	VerdictVariantRegresses VerdictKind = "variant-regresses"
)

// Verdict is the significance evaluator's output. It carries the sample
// sizes it was computed from so it can be reproduced from recorded metrics.
type Verdict struct {
	Kind              VerdictKind `json:"kind"`
	Variant           Variant     `json:"variant"`
	Baseline          Variant     `json:"baseline"`
	Confidence        float64     `json:"confidence"` // Percent, 0-100
	BaselineSamples   int64       `json:"baseline_samples"`
	CandidateSamples  int64       `json:"candidate_samples"`
	ClickThroughZ     float64     `json:"ctr_z"`
	ClickThroughP     float64     `json:"ctr_p"`
	ErrorRateZ        float64     `json:"error_rate_z"`
	ErrorRateP        float64     `json:"error_rate_p"`
	ErrorRateDelta    float64     `json:"error_rate_delta"`
	ClickThroughDelta float64     `json:"ctr_delta"`
	Reason            string      `json:"reason,omitempty"`
}

// AuditAction names a planner transition or refusal
type AuditAction string

const (
	AuditAdvance        AuditAction = "advance"
	AuditAdvanceRefused AuditAction = "advance-refused"
	AuditRollback       AuditAction = "rollback"
	AuditClearHold      AuditAction = "clear-hold"
)

// TriggerSource identifies who requested a transition
type TriggerSource string

const (
	SourceManual  TriggerSource = "manual"
	SourceMonitor TriggerSource = "monitor"
	SourceAuto    TriggerSource = "auto"
)

// AuditEntry is an append-only record of a planner action
type AuditEntry struct {
	ID        string        `json:"id"`
	Action    AuditAction   `json:"action"`
	Source    TriggerSource `json:"source"`
	FromPhase string        `json:"from_phase"`
	ToPhase   string        `json:"to_phase"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
