package significance

import (
	"fmt"
	"math"
	"sort"

	"github.com/cuemby/rollout/pkg/metrics"
	"github.com/cuemby/rollout/pkg/types"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config holds the evaluator's decision policy
type Config struct {
	// MinSamples is the minimum impressions per variant before any verdict
	// other than insufficient-data. Default: 100
	MinSamples int64 `yaml:"min_samples"`

	// ConfidenceLevel is the floor for declaring significance. Default: 0.95
	ConfidenceLevel float64 `yaml:"confidence_level"`

	// MaxErrorRateDelta classifies a candidate as regressing whenever its
	// error rate exceeds the baseline's by more than this, significant or
	// not. Zero disables the cap. Default: 0.05
	MaxErrorRateDelta float64 `yaml:"max_error_rate_delta"`
}

// DefaultConfig returns the conservative default policy
func DefaultConfig() Config {
	return Config{
		MinSamples:        100,
		ConfidenceLevel:   0.95,
		MaxErrorRateDelta: 0.05,
	}
}

// SnapshotSource provides point-in-time copies of a variant's metrics
type SnapshotSource interface {
	Snapshot(variant types.Variant) types.PerformanceMetrics
}

// Evaluator compares variants' recorded metrics. It holds no mutable state
// and is safe for concurrent use.
type Evaluator struct {
	cfg    Config
	source SnapshotSource
}

// New creates an evaluator reading snapshots from source. Zero-valued
// config fields take their defaults.
func New(cfg Config, source SnapshotSource) *Evaluator {
	def := DefaultConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 1 {
		cfg.ConfidenceLevel = def.ConfidenceLevel
	}
	return &Evaluator{cfg: cfg, source: source}
}

// Config returns the effective policy
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate compares the candidate's current snapshot against the baseline's
func (e *Evaluator) Evaluate(baseline, candidate types.Variant) types.Verdict {
	v := e.Compare(e.source.Snapshot(baseline), e.source.Snapshot(candidate))
	metrics.VerdictConfidence.WithLabelValues(string(candidate), string(v.Kind)).Set(v.Confidence)
	return v
}

// EvaluateAll evaluates every candidate other than the baseline
func (e *Evaluator) EvaluateAll(baseline types.Variant, candidates []types.Variant) []types.Verdict {
	out := make([]types.Verdict, 0, len(candidates))
	for _, c := range candidates {
		if c == baseline {
			continue
		}
		out = append(out, e.Evaluate(baseline, c))
	}
	return out
}

// Compare classifies candidate against baseline. The result depends only on
// the two snapshots and the policy.
func (e *Evaluator) Compare(base, cand types.PerformanceMetrics) types.Verdict {
	v := types.Verdict{
		Variant:          cand.Variant,
		Baseline:         base.Variant,
		BaselineSamples:  base.Impressions,
		CandidateSamples: cand.Impressions,
	}

	if base.Impressions < e.cfg.MinSamples || cand.Impressions < e.cfg.MinSamples {
		v.Kind = types.VerdictInsufficientData
		v.Reason = fmt.Sprintf("need %d impressions per variant, have baseline=%d candidate=%d",
			e.cfg.MinSamples, base.Impressions, cand.Impressions)
		return v
	}

	v.ErrorRateZ, v.ErrorRateP = TwoProportionZTest(cand.Errors, cand.Impressions, base.Errors, base.Impressions)
	v.ClickThroughZ, v.ClickThroughP = TwoProportionZTest(cand.Interactions, cand.Impressions, base.Interactions, base.Impressions)
	v.ErrorRateDelta = cand.ErrorRate() - base.ErrorRate()
	v.ClickThroughDelta = cand.ClickThroughRate() - base.ClickThroughRate()

	floor := e.cfg.ConfidenceLevel * 100
	errConfidence := Confidence(v.ErrorRateP)
	ctrConfidence := Confidence(v.ClickThroughP)

	switch {
	case v.ErrorRateZ > 0 && errConfidence >= floor:
		v.Kind = types.VerdictVariantRegresses
		v.Confidence = errConfidence
		v.Reason = fmt.Sprintf("error rate %.4f vs %.4f is significantly higher", cand.ErrorRate(), base.ErrorRate())
	case e.cfg.MaxErrorRateDelta > 0 && v.ErrorRateDelta > e.cfg.MaxErrorRateDelta:
		v.Kind = types.VerdictVariantRegresses
		v.Confidence = errConfidence
		v.Reason = fmt.Sprintf("error rate delta %.4f exceeds cap %.4f", v.ErrorRateDelta, e.cfg.MaxErrorRateDelta)
	case ctrConfidence >= floor && v.ClickThroughZ > 0:
		v.Kind = types.VerdictVariantWins
		v.Confidence = ctrConfidence
		v.Reason = fmt.Sprintf("click-through %.4f vs %.4f is significantly higher", cand.ClickThroughRate(), base.ClickThroughRate())
	case ctrConfidence >= floor && v.ClickThroughZ < 0:
		v.Kind = types.VerdictVariantRegresses
		v.Confidence = ctrConfidence
		v.Reason = fmt.Sprintf("click-through %.4f vs %.4f is significantly lower", cand.ClickThroughRate(), base.ClickThroughRate())
	default:
		v.Kind = types.VerdictNoDifference
		v.Confidence = ctrConfidence
	}

	return v
}

// Summarize picks the headline verdict from a set of per-candidate verdicts:
// any regression first, then insufficient data, then the strongest win,
// then no difference.
func Summarize(verdicts []types.Verdict) types.Verdict {
	if len(verdicts) == 0 {
		return types.Verdict{Kind: types.VerdictInsufficientData, Reason: "no candidates to compare"}
	}

	rank := map[types.VerdictKind]int{
		types.VerdictVariantRegresses: 0,
		types.VerdictInsufficientData: 1,
		types.VerdictVariantWins:      2,
		types.VerdictNoDifference:     3,
	}

	sorted := make([]types.Verdict, len(verdicts))
	copy(sorted, verdicts)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank[sorted[i].Kind], rank[sorted[j].Kind]
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted[0]
}

// TwoProportionZTest runs a pooled two-proportion z-test of x1/n1 against
// x2/n2 and returns the z statistic and two-tailed p-value. Successes above
// the trial count are clamped.
func TwoProportionZTest(x1, n1, x2, n2 int64) (z, p float64) {
	if n1 <= 0 || n2 <= 0 {
		return 0, 1
	}
	if x1 > n1 {
		x1 = n1
	}
	if x2 > n2 {
		x2 = n2
	}

	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	pooled := float64(x1+x2) / float64(n1+n2)

	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0, 1
	}

	z = (p1 - p2) / se
	p = 2 * (1 - distuv.UnitNormal.CDF(math.Abs(z)))
	return z, p
}

// Confidence converts a p-value to a confidence percentage
func Confidence(p float64) float64 {
	return math.Max(0, math.Min(100, (1-p)*100))
}
