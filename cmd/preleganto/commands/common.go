package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/preleganto/internal/compiler"
	"git.home.luguber.info/inful/preleganto/internal/config"
	"git.home.luguber.info/inful/preleganto/internal/events"
	"git.home.luguber.info/inful/preleganto/internal/lifecycle"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
	"git.home.luguber.info/inful/preleganto/internal/pipeline"
)

// Global is shared state bound into every command.
type Global struct {
	Logger     *slog.Logger
	Settings   *config.Settings
	Supervisor *lifecycle.Supervisor
	// Bus carries watch events to the friendly progress output.
	Bus    *events.Bus
	Stdout io.Writer
	Stderr io.Writer
}

// NewGlobal returns a Global writing to the given streams with default settings.
func NewGlobal(stdout, stderr io.Writer) *Global {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Global{
		Logger:   slog.Default(),
		Settings: config.DefaultSettings(),
		Bus:      events.NewBus(),
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Settings file path" default:"preleganto.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build  BuildCmd  `cmd:"" help:"Build a presentation from a Markdown file"`
	Serve  ServeCmd  `cmd:"" help:"Serve a presentation locally with live reload"`
	Export ExportCmd `cmd:"" help:"Export a self-contained presentation with all assets embedded"`
}

// AfterApply runs after flag parsing: load settings and set up logging once.
func (c *CLI) AfterApply(g *Global) error {
	// A missing default file is fine; a missing file the user named is not.
	settings, err := config.Load(c.Config, c.Config != config.DefaultSettingsFile)
	if err != nil {
		return err
	}
	g.Settings = settings

	level := settings.Logging.Level.SlogLevel(c.Verbose)
	g.Logger = slog.New(slog.NewTextHandler(g.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(g.Logger)
	return nil
}

// rebuildPolicy resolves the --on-rebuild-error flag against settings.
func (g *Global) rebuildPolicy(flag string) (config.RebuildFailurePolicy, error) {
	if flag == "" {
		return g.Settings.Watch.OnRebuildError, nil
	}
	return config.ParseRebuildFailurePolicy(flag)
}

func (g *Global) newPipeline(c compiler.Compiler, rec metrics.Recorder) *pipeline.Pipeline {
	return pipeline.New(c, pipeline.WithRecorder(rec), pipeline.WithLogger(g.Logger))
}

func (g *Global) newEmbedder() *compiler.Embedder {
	return compiler.NewEmbedder(compiler.EmbedOptions{
		Retries:      g.Settings.Embed.Retries,
		CacheSize:    g.Settings.Embed.CacheSize,
		UserAgent:    g.Settings.Embed.UserAgent,
		Timeout:      g.Settings.Embed.Timeout,
		MaxAssetSize: g.Settings.Embed.MaxAssetSize,
		Logger:       g.Logger,
	})
}

// logWatchEvents mirrors watch events into the structured log until stop is
// called. Call stop only after the watcher has returned.
func (g *Global) logWatchEvents(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := events.LogEvents(ctx, g.Bus, g.Logger)
	return func() {
		cancel()
		<-done
	}
}
