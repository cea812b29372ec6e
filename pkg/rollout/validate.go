package rollout

import (
	"fmt"
	"math"
	"strings"

	"github.com/cuemby/rollout/pkg/types"
)

// weightTolerance absorbs float rounding in hand-written weight tables
const weightTolerance = 0.01

// PlanError lists every problem found in a rollout plan
type PlanError struct {
	Problems []string
}

func (e *PlanError) Error() string {
	return "invalid rollout plan: " + strings.Join(e.Problems, "; ")
}

// ValidatePlan checks a phase sequence and baseline, returning a *PlanError
// when anything is wrong
func ValidatePlan(phases []types.RolloutPhase, baseline types.Variant) error {
	if problems := PlanProblems(phases, baseline); len(problems) > 0 {
		return &PlanError{Problems: problems}
	}
	return nil
}

// PlanProblems returns a description of every problem in the plan
func PlanProblems(phases []types.RolloutPhase, baseline types.Variant) []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !baseline.Known() {
		add("baseline variant %q is not in the catalog", baseline)
	}
	if len(phases) == 0 {
		add("at least one phase is required")
		return problems
	}

	names := make(map[string]bool)
	prevTraffic := -1.0
	for i, phase := range phases {
		label := fmt.Sprintf("phase %d", i)
		if phase.Name == "" {
			add("%s: name is required", label)
		} else {
			label = fmt.Sprintf("phase %q", phase.Name)
			if names[phase.Name] {
				add("%s: duplicate name", label)
			}
			names[phase.Name] = true
		}

		// Comparisons are written so that NaN fails them
		if !(phase.TrafficPercent >= 0 && phase.TrafficPercent <= 100) {
			add("%s: traffic percent %.2f outside [0, 100]", label, phase.TrafficPercent)
		}
		if !(phase.TrafficPercent > prevTraffic) {
			add("%s: traffic percent %.2f must exceed the previous phase's %.2f", label, phase.TrafficPercent, prevTraffic)
		}
		if finite(phase.TrafficPercent) {
			prevTraffic = phase.TrafficPercent
		}

		if phase.MinSamples < 0 {
			add("%s: min samples must not be negative", label)
		}
		if phase.MinDuration < 0 {
			add("%s: min duration must not be negative", label)
		}

		th := phase.Thresholds
		for _, v := range []float64{th.MaxErrorRateDelta, th.MaxLatencyRegression, th.WarnErrorRateDelta, th.WarnLatencyRegression} {
			if !finite(v) || v < 0 {
				add("%s: thresholds must be finite and not negative", label)
				break
			}
		}

		problems = append(problems, weightProblems(label, phase, baseline)...)
	}

	return problems
}

func weightProblems(label string, phase types.RolloutPhase, baseline types.Variant) []string {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(label+": "+format, args...))
	}

	if len(phase.Config.Weights) == 0 {
		add("weight table is empty")
		return problems
	}

	seen := make(map[types.Variant]bool)
	for _, w := range phase.Config.Weights {
		if !w.Variant.Known() {
			add("variant %q is not in the catalog", w.Variant)
		}
		if seen[w.Variant] {
			add("variant %q listed more than once", w.Variant)
		}
		seen[w.Variant] = true

		if !finite(w.Weight) || w.Weight < 0 {
			add("variant %q has invalid weight %v", w.Variant, w.Weight)
		}
	}

	total := phase.Config.Total()
	if !(math.Abs(total-100) <= weightTolerance) {
		add("weights sum to %.2f, want 100", total)
		return problems
	}

	challengerShare := total - phase.Config.WeightOf(baseline)
	if !(math.Abs(challengerShare-phase.TrafficPercent) <= weightTolerance) {
		add("challenger weights sum to %.2f but traffic percent is %.2f", challengerShare, phase.TrafficPercent)
	}

	return problems
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
