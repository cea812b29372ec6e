package log

import (
	"io"
	"os"
	"time"

	"github.com/cuemby/rollout/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger = zerolog.Nop()
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// ParseLevel maps a free-form level string to a Level, defaulting to info
func ParseLevel(s string) Level {
	switch Level(s) {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return Level(s)
	default:
		return InfoLevel
	}
}

// Init initializes the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithVariant adds the variant field to a component logger
func WithVariant(l zerolog.Logger, variant types.Variant) zerolog.Logger {
	return l.With().Str("variant", string(variant)).Logger()
}

// WithPhase adds the phase field to a component logger
func WithPhase(l zerolog.Logger, phase string) zerolog.Logger {
	return l.With().Str("phase", phase).Logger()
}

// WithSegment adds the segment key field to a component logger
func WithSegment(l zerolog.Logger, segment string) zerolog.Logger {
	return l.With().Str("segment", segment).Logger()
}

// Info logs msg on the global logger
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Warn logs msg on the global logger
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Errorf logs msg with err on the global logger
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}
