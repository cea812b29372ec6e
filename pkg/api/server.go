package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/rollout/pkg/engine"
	"github.com/cuemby/rollout/pkg/events"
	"github.com/cuemby/rollout/pkg/log"
	"github.com/cuemby/rollout/pkg/metrics"
	"github.com/cuemby/rollout/pkg/rollout"
	"github.com/cuemby/rollout/pkg/types"
	"github.com/rs/zerolog"
)

// Engine is the engine surface the HTTP API exposes
type Engine interface {
	Assign(segmentKey string) engine.Assignment
	RecordEvent(variant types.Variant, kind types.EventKind, value float64) error
	GetDashboardSnapshot() engine.Dashboard
	Status() rollout.Status
	Alerts(limit int) []types.Alert
	Advance(source types.TriggerSource) (types.RolloutPhase, error)
	Rollback(reason string, source types.TriggerSource) types.AuditEntry
	ClearHold(reason string) types.AuditEntry
	Events() *events.Broker
}

// Config holds HTTP server settings
type Config struct {
	Addr string

	// AdminToken, when set, is required as a bearer token on rollout
	// mutations
	AdminToken string

	// EventsRateLimit limits POST /v1/events per client IP
	EventsRateLimit RateLimit
}

// Server serves the rollout HTTP API
type Server struct {
	engine  Engine
	cfg     Config
	mux     *http.ServeMux
	http    *http.Server
	limiter *rateLimiter
	logger  zerolog.Logger
}

// NewServer creates a new API server
func NewServer(eng Engine, cfg Config) *Server {
	s := &Server{
		engine: eng,
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}
	if cfg.EventsRateLimit.RequestsPerSecond > 0 {
		s.limiter = newRateLimiter(cfg.EventsRateLimit)
	}
	s.routes()

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.handle("GET /v1/assignment", "assignment", s.handleAssignment)
	s.handle("POST /v1/events", "events", s.rateLimited(s.handleEvents))
	s.handle("GET /v1/dashboard", "dashboard", s.handleDashboard)
	s.handle("GET /v1/alerts", "alerts", s.handleAlerts)
	s.handle("GET /v1/rollout/status", "status", s.handleStatus)
	s.handle("POST /v1/rollout/advance", "advance", s.requireAdmin(s.handleAdvance))
	s.handle("POST /v1/rollout/rollback", "rollback", s.requireAdmin(s.handleRollback))
	s.handle("POST /v1/rollout/clear-hold", "clear-hold", s.requireAdmin(s.handleClearHold))

	// Streaming responses are not instrumented; their duration is the
	// lifetime of the subscription
	s.mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)

	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("/health", metrics.HealthHandler())
	s.mux.HandleFunc("/ready", metrics.ReadyHandler())
	s.mux.HandleFunc("/live", metrics.LivenessHandler())
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis until Shutdown is called
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP API listening")
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
