package rollout

import (
	"math"
	"strings"
	"testing"

	"github.com/cuemby/rollout/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestPlanProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]types.RolloutPhase) []types.RolloutPhase
		want   string
	}{
		{
			name:   "valid plan",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase { return p },
		},
		{
			name:   "empty plan",
			mutate: func([]types.RolloutPhase) []types.RolloutPhase { return nil },
			want:   "at least one phase",
		},
		{
			name: "weights do not sum to 100",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[0].Config.Weights[0].Weight = 90
				return p
			},
			want: "sum to 95.00",
		},
		{
			name: "unknown variant",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[0].Config.Weights[1].Variant = "canvas"
				return p
			},
			want: "not in the catalog",
		},
		{
			name: "negative weight",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[0].Config.Weights = []types.WeightEntry{
					{Variant: types.VariantOriginal, Weight: 105},
					{Variant: types.VariantPhase4Enhanced, Weight: -5},
				}
				return p
			},
			want: "invalid weight",
		},
		{
			name: "NaN traffic percent",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[0].TrafficPercent = math.NaN()
				return p
			},
			want: "outside [0, 100]",
		},
		{
			name: "NaN weight",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[0].Config.Weights[1].Weight = math.NaN()
				return p
			},
			want: "sum to NaN",
		},
		{
			name: "infinite threshold",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[2].Thresholds.MaxLatencyRegression = math.Inf(1)
				return p
			},
			want: "thresholds must be finite",
		},
		{
			name: "traffic not increasing",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[1] = phase("early", 5, 100, 0)
				return p
			},
			want: "must exceed",
		},
		{
			name: "duplicate phase name",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[1].Name = "canary"
				return p
			},
			want: "duplicate name",
		},
		{
			name: "traffic disagrees with weights",
			mutate: func(p []types.RolloutPhase) []types.RolloutPhase {
				p[1].TrafficPercent = 25
				return p
			},
			want: "challenger weights",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := PlanProblems(tt.mutate(testPhases()), types.VariantOriginal)
			if tt.want == "" {
				assert.Empty(t, problems)
				return
			}
			assert.NotEmpty(t, problems)
			assert.Contains(t, strings.Join(problems, "; "), tt.want)
		})
	}
}

func TestPlanProblemsUnknownBaseline(t *testing.T) {
	problems := PlanProblems(testPhases(), "legacy")
	assert.Contains(t, strings.Join(problems, "; "), `baseline variant "legacy"`)
}

func TestValidatePlanReturnsPlanError(t *testing.T) {
	assert.NoError(t, ValidatePlan(testPhases(), types.VariantOriginal))

	err := ValidatePlan(nil, types.VariantOriginal)
	assert.Error(t, err)
	assert.IsType(t, &PlanError{}, err)
}
