package commands

import (
	"context"

	"git.home.luguber.info/inful/preleganto/internal/compiler"
	"git.home.luguber.info/inful/preleganto/internal/config"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
	"git.home.luguber.info/inful/preleganto/internal/watch"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Input          string `short:"i" required:"" help:"Markdown source of the presentation"`
	Output         string `short:"o" default:"slides.html" help:"Where to write the HTML"`
	Watch          bool   `short:"w" help:"Rebuild whenever the input changes"`
	OnRebuildError string `name:"on-rebuild-error" help:"What a failed rebuild does while watching (exit|continue)"`
}

func (b *BuildCmd) invocation() config.Invocation {
	return config.Invocation{
		Command:    config.CommandBuild,
		InputPath:  b.Input,
		OutputPath: b.Output,
		Watch:      b.Watch,
	}
}

func (b *BuildCmd) Run(ctx context.Context, g *Global) error {
	inv := b.invocation()
	if err := inv.Validate(); err != nil {
		return err
	}
	bc, err := inv.BuildConfig()
	if err != nil {
		return err
	}
	policy, err := g.rebuildPolicy(b.OnRebuildError)
	if err != nil {
		return err
	}

	out := newPrinter(g.Stdout)
	out.logo()
	out.say("I will try to build '%s'", b.Input)

	p := g.newPipeline(compiler.NewMarkdown(compiler.WithLogger(g.Logger)), metrics.NoopRecorder{})
	if _, err := p.Build(ctx, b.Input, b.Output, bc); err != nil {
		return err
	}
	out.say("I managed to build '%s' so I created '%s'", b.Input, b.Output)
	out.newline()

	if !b.Watch {
		return nil
	}

	w, err := watch.New(watch.Config{
		Path:          b.Input,
		Output:        b.Output,
		BuildConfig:   bc,
		Builder:       p,
		Debounce:      g.Settings.Watch.Debounce,
		FailurePolicy: policy,
		Bus:           g.Bus,
		Logger:        g.Logger,
	})
	if err != nil {
		return err
	}

	out.say("I am watching '%s' for changes", b.Input)
	out.newline()
	stop := out.followWatch(g.Bus, b.Input)
	defer stop()
	stopLogging := g.logWatchEvents(ctx)
	defer stopLogging()

	return w.Run(ctx)
}
