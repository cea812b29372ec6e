package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/rollout/pkg/api"
	"github.com/cuemby/rollout/pkg/engine"
	"github.com/cuemby/rollout/pkg/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the experiment engine and HTTP API",
	Long: `Run the experiment engine: variant assignment, event recording, the
live monitor and the HTTP API. Metrics and the audit trail are persisted
under the data directory and restored on restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Data directory for persisted state (overrides config)")
	serveCmd.Flags().Bool("in-memory", false, "Do not persist any state")
	serveCmd.Flags().String("admin-token", os.Getenv("ROLLOUT_ADMIN_TOKEN"), "Bearer token required for rollout mutations")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if inMemory, _ := cmd.Flags().GetBool("in-memory"); inMemory {
		cfg.Storage.DataDir = ""
	}
	token, _ := cmd.Flags().GetString("admin-token")
	if token == "" {
		log.Warn("No admin token set; rollout mutations are not authenticated")
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	server := api.NewServer(eng, api.Config{
		Addr:       cfg.Server.Addr,
		AdminToken: token,
		EventsRateLimit: api.RateLimit{
			RequestsPerSecond: cfg.Server.EventsRateLimit.RequestsPerSecond,
			Burst:             cfg.Server.EventsRateLimit.Burst,
			TrustProxyHeaders: cfg.Server.EventsRateLimit.TrustProxyHeaders,
		},
	})
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()

	st := eng.Status()
	log.Logger.Info().
		Str("experiment", cfg.Experiment.Name).
		Str("addr", cfg.Server.Addr).
		Str("phase", st.Phase.Name).
		Bool("held", st.Held).
		Msg("Rollout engine running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		log.Info("Shutting down")
	case runErr = <-errCh:
		log.Errorf("API server stopped", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Failed to shut down API server", err)
	}

	if err := eng.Stop(); err != nil {
		return fmt.Errorf("failed to stop engine: %w", err)
	}

	log.Info("Shutdown complete")
	return runErr
}
