package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cuemby/rollout/pkg/engine"
	"github.com/cuemby/rollout/pkg/rollout"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay synthetic traffic through the rollout plan offline",
	Long: `Simulate visitors against the configured rollout plan without a server.

Each round assigns a slice of visitors, records synthetic impressions,
interactions, errors and latency for the baseline and challenger profiles,
moves a virtual clock forward, runs the monitor and attempts an advance.

Examples:
  # Challenger slightly better: expect steady advancement
  rollout simulate --candidate-ctr 0.12

  # Challenger with an error spike: expect a rollback
  rollout simulate --candidate-error 0.08`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Int("visitors", 50000, "Total visitors across all rounds")
	simulateCmd.Flags().Int("rounds", 10, "Number of monitor rounds")
	simulateCmd.Flags().Duration("tick", 6*time.Hour, "Virtual time between rounds")
	simulateCmd.Flags().Uint64("seed", 1, "Random seed")
	simulateCmd.Flags().Float64("baseline-ctr", 0.10, "Baseline click-through rate")
	simulateCmd.Flags().Float64("candidate-ctr", 0.11, "Challenger click-through rate")
	simulateCmd.Flags().Float64("baseline-error", 0.01, "Baseline error rate")
	simulateCmd.Flags().Float64("candidate-error", 0.01, "Challenger error rate")
	simulateCmd.Flags().Float64("baseline-latency", 0.20, "Baseline mean latency in seconds")
	simulateCmd.Flags().Float64("candidate-latency", 0.21, "Challenger mean latency in seconds")

	rootCmd.AddCommand(simulateCmd)
}

type trafficProfile struct {
	ctr, errorRate, latency float64
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Storage.DataDir = ""

	flags := cmd.Flags()
	visitors, _ := flags.GetInt("visitors")
	rounds, _ := flags.GetInt("rounds")
	tick, _ := flags.GetDuration("tick")
	seed, _ := flags.GetUint64("seed")
	if rounds <= 0 || visitors < rounds {
		return errors.New("--rounds must be positive and no larger than --visitors")
	}

	var base, cand trafficProfile
	base.ctr, _ = flags.GetFloat64("baseline-ctr")
	base.errorRate, _ = flags.GetFloat64("baseline-error")
	base.latency, _ = flags.GetFloat64("baseline-latency")
	cand.ctr, _ = flags.GetFloat64("candidate-ctr")
	cand.errorRate, _ = flags.GetFloat64("candidate-error")
	cand.latency, _ = flags.GetFloat64("candidate-latency")

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng, err := engine.New(cfg, engine.WithClock(func() time.Time { return clock }))
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Stop()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perRound := visitors / rounds

	fmt.Printf("%-6s %-16s %8s %7s  %s\n", "ROUND", "PHASE", "TRAFFIC", "ALERTS", "RESULT")
	for round := 1; round <= rounds; round++ {
		for i := 0; i < perRound; i++ {
			v := eng.GetAssignedVariant(fmt.Sprintf("sim-%d-%d", round, i))
			p := cand
			if v == cfg.Experiment.Baseline {
				p = base
			}
			if err := simulateVisit(eng, rng, v, p); err != nil {
				return err
			}
		}

		clock = clock.Add(tick)
		alerts := eng.CheckNow()

		var result string
		phase, err := eng.Advance(types.SourceAuto)
		switch {
		case err == nil:
			result = fmt.Sprintf("advanced to %s", phase.Name)
		case errors.Is(err, rollout.ErrHeld):
			result = "held after rollback"
		case errors.Is(err, rollout.ErrFinalPhase):
			result = "complete"
		default:
			result = err.Error()
		}

		st := eng.Status()
		fmt.Printf("%-6d %-16s %7.1f%% %7d  %s\n", round, st.Phase.Name, st.Phase.TrafficPercent, len(alerts), result)
	}

	fmt.Println()
	printDashboard(eng.GetDashboardSnapshot())
	return nil
}

// simulateVisit records one impression and its follow-up events
func simulateVisit(eng *engine.Engine, rng *rand.Rand, v types.Variant, p trafficProfile) error {
	if err := eng.RecordEvent(v, types.EventImpression, 0); err != nil {
		return err
	}
	if rng.Float64() < p.ctr {
		if err := eng.RecordEvent(v, types.EventInteraction, 0); err != nil {
			return err
		}
	}
	if rng.Float64() < p.errorRate {
		if err := eng.RecordEvent(v, types.EventError, 0); err != nil {
			return err
		}
	}
	// Uniform on [0.5, 1.5) of the mean
	return eng.RecordEvent(v, types.EventLatency, p.latency*(0.5+rng.Float64()))
}
