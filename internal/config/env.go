package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
)

// Environment variables recognized on top of the settings file.
const (
	EnvLogLevel       = "PRELEGANTO_LOG_LEVEL"
	EnvDebounce       = "PRELEGANTO_DEBOUNCE"
	EnvOnRebuildError = "PRELEGANTO_ON_REBUILD_ERROR"
)

// loadEnvFile loads .env then .env.local from the working directory.
// Existing process variables win; missing files are ignored.
func loadEnvFile() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Ignoring unreadable env file", "path", name, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", name)
	}
}

func applyEnvOverrides(s *Settings) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.Logging.Level = LogLevel(v)
	}
	if v := os.Getenv(EnvOnRebuildError); v != "" {
		s.Watch.OnRebuildError = RebuildFailurePolicy(v)
	}
	if v := os.Getenv(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid "+EnvDebounce).
				WithContext("value", v).
				Build()
		}
		s.Watch.Debounce = d
	}
	return nil
}
