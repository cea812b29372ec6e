package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/cuemby/rollout/pkg/log"
	"github.com/cuemby/rollout/pkg/monitor"
	"github.com/cuemby/rollout/pkg/rollout"
	"github.com/cuemby/rollout/pkg/significance"
	"github.com/cuemby/rollout/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration
type Config struct {
	Experiment ExperimentConfig     `yaml:"experiment"`
	Evaluator  significance.Config  `yaml:"evaluator"`
	Monitor    monitor.Config       `yaml:"monitor"`
	Phases     []types.RolloutPhase `yaml:"phases"`
	Log        LogConfig            `yaml:"log"`
	Server     ServerConfig         `yaml:"server"`
	Storage    StorageConfig        `yaml:"storage"`
	Metrics    MetricsConfig        `yaml:"metrics"`
}

// ExperimentConfig names the experiment and its baseline
type ExperimentConfig struct {
	Name     string        `yaml:"name"`
	Baseline types.Variant `yaml:"baseline"`
}

// LogConfig configures pkg/log
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string          `yaml:"addr"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	EventsRateLimit RateLimitConfig `yaml:"events_rate_limit"`
}

// RateLimitConfig limits event ingestion per client IP. Zero disables.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// TrustProxyHeaders identifies clients by X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// StorageConfig configures the local store. An empty DataDir keeps
// everything in memory.
type StorageConfig struct {
	DataDir          string        `yaml:"data_dir"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// MetricsConfig configures the Prometheus gauge collector
type MetricsConfig struct {
	CollectInterval time.Duration `yaml:"collect_interval"`
}

// ValidationError lists every problem found in a configuration
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Default returns the built-in configuration: a five phase rollout of
// phase4-enhanced against original
func Default() Config {
	return Config{
		Experiment: ExperimentConfig{
			Name:     "map-markers",
			Baseline: types.VariantOriginal,
		},
		Evaluator: significance.DefaultConfig(),
		Monitor:   monitor.DefaultConfig(),
		Phases:    DefaultPhases(),
		Log: LogConfig{
			Level: string(log.InfoLevel),
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 10 * time.Second,
			EventsRateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Storage: StorageConfig{
			DataDir:          "./data",
			SnapshotInterval: time.Minute,
		},
		Metrics: MetricsConfig{
			CollectInterval: 15 * time.Second,
		},
	}
}

// DefaultPhases returns the 5 -> 20 -> 50 -> 80 -> 100 plan
func DefaultPhases() []types.RolloutPhase {
	thresholds := types.Thresholds{
		MaxErrorRateDelta:     0.05,
		MaxLatencyRegression:  0.5,
		WarnErrorRateDelta:    0.02,
		WarnLatencyRegression: 0.2,
	}

	plan := []struct {
		name     string
		traffic  float64
		duration time.Duration
	}{
		{"canary", 5, time.Hour},
		{"early-adopters", 20, 6 * time.Hour},
		{"half", 50, 12 * time.Hour},
		{"majority", 80, 24 * time.Hour},
		{"full", 100, 0},
	}

	phases := make([]types.RolloutPhase, 0, len(plan))
	for _, p := range plan {
		phases = append(phases, types.RolloutPhase{
			Name:           p.name,
			TrafficPercent: p.traffic,
			Config: types.ExperimentConfig{Weights: []types.WeightEntry{
				{Variant: types.VariantOriginal, Weight: 100 - p.traffic},
				{Variant: types.VariantPhase4Enhanced, Weight: p.traffic},
			}},
			MinSamples:  significance.DefaultConfig().MinSamples,
			MinDuration: p.duration,
			Thresholds:  thresholds,
		})
	}
	return phases
}

// Load reads and validates a YAML configuration file
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Omitted
// sections keep their default values; a phases list replaces the default
// plan entirely.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration and returns a *ValidationError listing
// every problem
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Experiment.Name == "" {
		add("experiment.name is required")
	}

	for _, p := range rollout.PlanProblems(c.Phases, c.Experiment.Baseline) {
		add("phases: %s", p)
	}

	if c.Evaluator.MinSamples < 0 {
		add("evaluator.min_samples must not be negative")
	}
	if !(c.Evaluator.ConfidenceLevel > 0 && c.Evaluator.ConfidenceLevel < 1) {
		add("evaluator.confidence_level must be between 0 and 1, got %v", c.Evaluator.ConfidenceLevel)
	}
	if !(c.Evaluator.MaxErrorRateDelta >= 0) || math.IsInf(c.Evaluator.MaxErrorRateDelta, 0) {
		add("evaluator.max_error_rate_delta must be finite and not negative")
	}

	if c.Monitor.Interval <= 0 {
		add("monitor.interval must be positive")
	}
	if c.Monitor.Cooldown < 0 {
		add("monitor.cooldown must not be negative")
	}
	if c.Monitor.MinImpressions < 0 {
		add("monitor.min_impressions must not be negative")
	}
	if c.Monitor.MaxAlerts < 0 {
		add("monitor.max_alerts must not be negative")
	}

	switch log.Level(c.Log.Level) {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}

	if c.Server.Addr == "" {
		add("server.addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout must not be negative")
	}
	if rl := c.Server.EventsRateLimit; !(rl.RequestsPerSecond >= 0) || math.IsInf(rl.RequestsPerSecond, 0) || rl.Burst < 0 {
		add("server.events_rate_limit must be finite and not negative")
	}
	if c.Storage.SnapshotInterval < 0 {
		add("storage.snapshot_interval must not be negative")
	}
	if c.Metrics.CollectInterval < 0 {
		add("metrics.collect_interval must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// LogSettings returns the pkg/log configuration
func (c Config) LogSettings() log.Config {
	return log.Config{
		Level:      log.ParseLevel(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}
