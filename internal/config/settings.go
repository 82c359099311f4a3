package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
)

// DefaultSettingsFile is looked up in the working directory when --config is not given.
const DefaultSettingsFile = "preleganto.yaml"

// Settings holds the optional tuning knobs that are not part of the CLI surface.
type Settings struct {
	Watch   WatchSettings   `yaml:"watch"`
	Preview PreviewSettings `yaml:"preview"`
	Embed   EmbedSettings   `yaml:"embed"`
	Logging LoggingSettings `yaml:"logging"`
}

// WatchSettings configures the change watcher.
type WatchSettings struct {
	// Debounce is the resolution of the trigger key; notifications falling in
	// the same window as the last accepted one are dropped.
	Debounce       time.Duration        `yaml:"debounce"`
	OnRebuildError RebuildFailurePolicy `yaml:"on_rebuild_error"`
}

// PreviewSettings configures the serve command.
type PreviewSettings struct {
	LiveReload      bool          `yaml:"live_reload"`
	Metrics         bool          `yaml:"metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EmbedSettings configures asset inlining during export.
type EmbedSettings struct {
	Retries   int    `yaml:"retries"`
	CacheSize int    `yaml:"cache_size"`
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds each remote fetch; zero leaves fetches unbounded.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAssetSize is the largest asset in bytes that export inlines.
	MaxAssetSize int64 `yaml:"max_asset_size"`
}

// LoggingSettings configures slog.
type LoggingSettings struct {
	Level LogLevel `yaml:"level"`
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() *Settings {
	return &Settings{
		Watch: WatchSettings{
			Debounce:       time.Second,
			OnRebuildError: RebuildFailureExit,
		},
		Preview: PreviewSettings{
			LiveReload:      true,
			ShutdownTimeout: 5 * time.Second,
		},
		Embed: EmbedSettings{
			Retries:      3,
			CacheSize:    128,
			UserAgent:    "preleganto",
			MaxAssetSize: 32 << 20,
		},
		Logging: LoggingSettings{Level: LogLevelInfo},
	}
}

// Load reads the settings file at path on top of the defaults, then applies
// environment overrides. A missing file is only an error when explicit is set.
func Load(path string, explicit bool) (*Settings, error) {
	loadEnvFile()

	s := DefaultSettings()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), s); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse settings file").
				WithContext("path", path).
				Build()
		}
		slog.Debug("Loaded settings file", "path", path)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read settings file").
			WithContext("path", path).
			Build()
	}

	if err := applyEnvOverrides(s); err != nil {
		return nil, err
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) normalize() error {
	policy, err := ParseRebuildFailurePolicy(string(s.Watch.OnRebuildError))
	if err != nil {
		return err
	}
	s.Watch.OnRebuildError = policy
	s.Logging.Level = NormalizeLogLevel(string(s.Logging.Level))

	if s.Watch.Debounce <= 0 {
		return ferrors.ConfigError("watch.debounce must be > 0").
			WithContext("value", s.Watch.Debounce.String()).
			Build()
	}
	if s.Preview.ShutdownTimeout <= 0 {
		s.Preview.ShutdownTimeout = 5 * time.Second
	}
	if s.Embed.Retries < 0 {
		s.Embed.Retries = 0
	}
	if s.Embed.CacheSize <= 0 {
		s.Embed.CacheSize = 128
	}
	return nil
}
