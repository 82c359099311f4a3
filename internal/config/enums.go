package config

import (
	"log/slog"

	"git.home.luguber.info/inful/preleganto/internal/foundation/normalization"
)

// RebuildFailurePolicy decides what a failed rebuild does to a running watch session.
type RebuildFailurePolicy string

const (
	// RebuildFailureExit ends the session with the build error.
	RebuildFailureExit RebuildFailurePolicy = "exit"
	// RebuildFailureContinue logs the failure and keeps the last good output.
	RebuildFailureContinue RebuildFailurePolicy = "continue"
)

var rebuildFailureNormalizer = normalization.NewNormalizer("rebuild failure policy", map[string]RebuildFailurePolicy{
	"exit":     RebuildFailureExit,
	"fail":     RebuildFailureExit,
	"continue": RebuildFailureContinue,
	"keep":     RebuildFailureContinue,
}, RebuildFailureExit)

// ParseRebuildFailurePolicy validates raw; empty input selects RebuildFailureExit.
func ParseRebuildFailurePolicy(raw string) (RebuildFailurePolicy, error) {
	return rebuildFailureNormalizer.Parse(raw)
}

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer("log level", map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

func NormalizeLogLevel(raw string) LogLevel {
	return logLevelNormalizer.Normalize(raw)
}

// SlogLevel maps the level onto slog; verbose forces debug.
func (l LogLevel) SlogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
