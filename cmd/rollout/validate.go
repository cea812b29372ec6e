package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/rollout/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file and print the rollout plan",
	Long: `Validate a rollout configuration and print its phase plan.

Examples:
  # Check a configuration file
  rollout validate -c rollout.yaml

  # Show the built-in plan
  rollout validate`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Configuration valid\n\n")
	fmt.Printf("Experiment: %s (baseline %s)\n", cfg.Experiment.Name, cfg.Experiment.Baseline)
	fmt.Printf("Evaluator:  min samples %d, confidence %.0f%%\n", cfg.Evaluator.MinSamples, cfg.Evaluator.ConfidenceLevel*100)
	fmt.Printf("Monitor:    every %s, cooldown %s, auto-advance %t\n\n", cfg.Monitor.Interval, cfg.Monitor.Cooldown, cfg.Monitor.AutoAdvance)

	printPlan(cfg)
	return nil
}

func printPlan(cfg config.Config) {
	fmt.Printf("%-3s %-16s %8s %8s %10s  %s\n", "#", "PHASE", "TRAFFIC", "SAMPLES", "DURATION", "WEIGHTS")
	for i, p := range cfg.Phases {
		var weights []string
		for _, w := range p.Config.Weights {
			weights = append(weights, fmt.Sprintf("%s=%g", w.Variant, w.Weight))
		}
		fmt.Printf("%-3d %-16s %7.1f%% %8d %10s  %s\n",
			i, p.Name, p.TrafficPercent, p.MinSamples, p.MinDuration, strings.Join(weights, " "))
	}
}
