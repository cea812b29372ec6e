package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/rollout/pkg/client"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the dashboard of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if wait, _ := cmd.Flags().GetDuration("wait"); wait > 0 {
			waitCtx, waitCancel := context.WithTimeout(context.Background(), wait)
			defer waitCancel()
			if err := c.WaitReady(waitCtx, time.Second); err != nil {
				return err
			}
		}

		ctx, cancel := requestContext()
		defer cancel()

		d, err := c.Dashboard(ctx)
		if err != nil {
			return err
		}

		printDashboard(d)
		return nil
	},
}

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance the rollout to its next phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext()
		defer cancel()

		phase, err := c.Advance(ctx)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && len(apiErr.Reasons) > 0 {
				fmt.Println("✗ Advance refused:")
				for _, r := range apiErr.Reasons {
					fmt.Printf("  - %s\n", r)
				}
				return errors.New("advance refused")
			}
			return err
		}

		fmt.Printf("✓ Advanced to %s (%.1f%% traffic)\n", phase.Name, phase.TrafficPercent)
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll the rollout back to its first phase and hold it there",
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext()
		defer cancel()

		entry, err := c.Rollback(ctx, reason)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Rolled back from %s to %s; advancement held until clear-hold\n", entry.FromPhase, entry.ToPhase)
		return nil
	},
}

var clearHoldCmd = &cobra.Command{
	Use:   "clear-hold",
	Short: "Re-enable advancement after a rollback",
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext()
		defer cancel()

		entry, err := c.ClearHold(ctx, reason)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Hold cleared at %s\n", entry.ToPhase)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{statusCmd, advanceCmd, rollbackCmd, clearHoldCmd} {
		cmd.Flags().String("server", "127.0.0.1:8080", "Rollout server address")
		cmd.Flags().String("token", os.Getenv("ROLLOUT_ADMIN_TOKEN"), "Admin bearer token")
		rootCmd.AddCommand(cmd)
	}
	statusCmd.Flags().Duration("wait", 0, "Wait up to this long for the server to become ready")
	rollbackCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
	clearHoldCmd.Flags().String("reason", "", "Reason recorded in the audit trail")
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")

	c, err := client.NewClient(addr, client.WithToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return c, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
