package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/rollout/pkg/storage"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect or back up the local state database",
	Long: `Read the local bbolt database directly. The server must be stopped,
or the command fails after a short wait for the file lock.`,
}

var dbAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print the persisted audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.ListAudit()
		if err != nil {
			return fmt.Errorf("failed to read audit trail: %w", err)
		}

		fmt.Printf("%-20s %-16s %-8s %-16s %-16s %s\n", "TIME", "ACTION", "SOURCE", "FROM", "TO", "REASON")
		for _, e := range entries {
			fmt.Printf("%-20s %-16s %-8s %-16s %-16s %s\n",
				e.Timestamp.Format(time.RFC3339), e.Action, e.Source, e.FromPhase, e.ToPhase, e.Reason)
		}
		return nil
	},
}

var dbAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Print persisted alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		alerts, err := store.ListAlerts(limit)
		if err != nil {
			return fmt.Errorf("failed to read alerts: %w", err)
		}
		for _, a := range alerts {
			fmt.Printf("%s [%s] %s %s: %s\n", a.Timestamp.Format(time.RFC3339), a.Severity, a.Phase, a.Variant, a.Message)
		}
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a consistent copy of the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = filepath.Join(dataDir, "rollout.db.backup")
		}

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Backup(out); err != nil {
			return err
		}
		fmt.Printf("✓ Backup written to %s\n", out)
		return nil
	},
}

func init() {
	dbCmd.PersistentFlags().String("data-dir", "./data", "Data directory containing rollout.db")
	dbAlertsCmd.Flags().Int("limit", 50, "Maximum alerts to print (0 for all)")
	dbBackupCmd.Flags().String("out", "", "Backup file (default: <data-dir>/rollout.db.backup)")

	dbCmd.AddCommand(dbAuditCmd, dbAlertsCmd, dbBackupCmd)
	rootCmd.AddCommand(dbCmd)
}

func openStore(cmd *cobra.Command) (*storage.BoltStore, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store in %s: %w", dataDir, err)
	}
	return store, nil
}
