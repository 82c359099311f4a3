package commands

import (
	"context"
	"strings"

	"git.home.luguber.info/inful/preleganto/internal/compiler"
	"git.home.luguber.info/inful/preleganto/internal/config"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
)

// ExportCmd implements the 'export' command.
type ExportCmd struct {
	Input  string `short:"i" required:"" help:"Markdown source of the presentation"`
	Output string `short:"o" default:"slides.html" help:"Where to write the bundle"`
	Format string `short:"f" enum:"html" default:"html" help:"Export format (html)"`
}

func (e *ExportCmd) invocation() config.Invocation {
	return config.Invocation{
		Command:    config.CommandExport,
		InputPath:  e.Input,
		OutputPath: e.Output,
		Format:     config.Format(e.Format),
	}
}

func (e *ExportCmd) Run(ctx context.Context, g *Global) error {
	inv := e.invocation()
	if err := inv.Validate(); err != nil {
		return err
	}
	bc, err := inv.BuildConfig()
	if err != nil {
		return err
	}

	out := newPrinter(g.Stdout)
	out.logo()
	out.say("I will try to export '%s' to %s", e.Input, strings.ToUpper(e.Format))
	out.say("It may take a while since external dependencies are being downloaded and binary files are being embedded")

	c := compiler.NewMarkdown(
		compiler.WithEmbedder(g.newEmbedder()),
		compiler.WithLogger(g.Logger),
	)
	if _, err := g.newPipeline(c, metrics.NoopRecorder{}).Build(ctx, e.Input, e.Output, bc); err != nil {
		return err
	}

	out.say("I managed to export '%s' to '%s'", e.Input, e.Output)
	out.newline()
	return nil
}
