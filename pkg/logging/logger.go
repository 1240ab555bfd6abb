// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as accepted in config files and flags.
type LogLevel string

const (
	LevelDebug    LogLevel = "debug"
	LevelInfo     LogLevel = "info"
	LevelWarn     LogLevel = "warn"
	LevelError    LogLevel = "error"
	LevelDisabled LogLevel = "disabled"
)

// levels maps every accepted spelling to its canonical level.
var levels = map[string]LogLevel{
	"debug":    LevelDebug,
	"info":     LevelInfo,
	"warn":     LevelWarn,
	"warning":  LevelWarn,
	"error":    LevelError,
	"disabled": LevelDisabled,
	"off":      LevelDisabled,
	"none":     LevelDisabled,
}

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelDebug:    zerolog.DebugLevel,
	LevelInfo:     zerolog.InfoLevel,
	LevelWarn:     zerolog.WarnLevel,
	LevelError:    zerolog.ErrorLevel,
	LevelDisabled: zerolog.Disabled,
}

// Config holds logger configuration.
type Config struct {
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service is added to every entry as "service" when set.
	Service string
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Setup builds a logger from cfg and installs it as the zerolog global,
// so loggers from NewLogger inherit its output and fields.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	lctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		lctx = lctx.Str("service", cfg.Service)
	}
	log.Logger = lctx.Logger()

	return log.Logger
}

// ParseLevel validates a level name from flags or config files.
// Empty means info.
func ParseLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return LevelInfo, nil
	}
	if level, ok := levels[name]; ok {
		return level, nil
	}
	return "", fmt.Errorf("unknown log level %q (want debug, info, warn, error or disabled)", s)
}

// parseLevel falls back to info for unknown names.
func parseLevel(level LogLevel) zerolog.Level {
	if canonical, ok := levels[strings.ToLower(string(level))]; ok {
		return zerologLevels[canonical]
	}
	return zerolog.InfoLevel
}

// NewLogger returns the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Levels in this module:
//
// Debug: cache hit/miss, request build, batch item transitions.
// Info: finished image operations, batch start and summary, validation resizes.
// Warn: retries, rate-limit waits, sandbox key, ignored attributes, cache
// failures that fall back to the API, failed items under continue.
// Error: requests failed after retries, aborted batches.
//
// Common fields: component, endpoint, status, error_class, attempt, backoff,
// batch_id, index, input.
