package main

import (
	"fmt"
	"time"

	"github.com/cuemby/rollout/pkg/engine"
)

func printDashboard(d engine.Dashboard) {
	held := ""
	if d.Held {
		held = fmt.Sprintf(" [HELD: %s]", d.HoldReason)
	}
	fmt.Printf("Experiment: %s\n", d.Experiment)
	fmt.Printf("Phase:      %s (%d/%d, %.1f%% traffic)%s\n",
		d.CurrentPhase.Name, d.PhaseIndex+1, d.PhaseCount, d.CurrentPhase.TrafficPercent, held)
	fmt.Printf("Verdict:    %s", d.Verdict.Kind)
	if d.Verdict.Variant != "" {
		fmt.Printf(" (%s vs %s, %.1f%% confidence)", d.Verdict.Variant, d.Verdict.Baseline, d.Verdict.Confidence)
	}
	fmt.Printf("\n\n")

	fmt.Printf("%-16s %7s %12s %8s %8s %10s\n", "VARIANT", "WEIGHT", "IMPRESSIONS", "CTR", "ERRORS", "LATENCY")
	for _, v := range d.PerVariant {
		fmt.Printf("%-16s %6.1f%% %12d %7.2f%% %7.2f%% %9.3fs\n",
			v.Variant, v.Weight, v.Impressions, v.ClickThroughRate*100, v.ErrorRate*100, v.LatencyMean)
	}

	if len(d.RecentAlerts) > 0 {
		fmt.Printf("\nRecent alerts:\n")
		for _, a := range d.RecentAlerts {
			fmt.Printf("  %s [%s] %s\n", a.Timestamp.Format(time.RFC3339), a.Severity, a.Message)
		}
	}
}
