package commands

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/preleganto/internal/compiler"
	"git.home.luguber.info/inful/preleganto/internal/config"
	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
	"git.home.luguber.info/inful/preleganto/internal/pipeline"
	"git.home.luguber.info/inful/preleganto/internal/preview"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Input          string `short:"i" required:"" help:"Markdown source of the presentation"`
	Host           string `default:"localhost" help:"Interface the preview server listens on"`
	Port           int    `short:"p" default:"8080" help:"Port of the preview server"`
	Watch          bool   `short:"w" help:"Rebuild and reload browsers whenever the input changes"`
	OnRebuildError string `name:"on-rebuild-error" help:"What a failed rebuild does while watching (exit|continue)"`
	NoLiveReload   bool   `name:"no-live-reload" help:"Disable live reload script injection"`
	Metrics        bool   `name:"metrics" help:"Expose Prometheus metrics at /metrics"`
}

func (s *ServeCmd) invocation() config.Invocation {
	return config.Invocation{
		Command:   config.CommandServe,
		InputPath: s.Input,
		Port:      s.Port,
		Watch:     s.Watch,
	}
}

func (s *ServeCmd) Run(ctx context.Context, g *Global) error {
	inv := s.invocation()
	if err := inv.Validate(); err != nil {
		return err
	}
	policy, err := g.rebuildPolicy(s.OnRebuildError)
	if err != nil {
		return err
	}

	var (
		recorder metrics.Recorder = metrics.NoopRecorder{}
		handler  http.Handler
	)
	if s.Metrics || g.Settings.Preview.Metrics {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		handler = metrics.HTTPHandler(reg)
	}

	out := newPrinter(g.Stdout)
	out.logo()
	out.say("I will try to build '%s'", s.Input)

	if g.Supervisor == nil {
		return ferrors.InternalError("serve requires a supervisor").Build()
	}
	g.Supervisor.OnExit("farewell", func(code int) {
		if code == ferrors.ExitOK {
			out.say("Good job! I am shutting down the server now")
		}
	})

	var stopFollowing, stopLogging func()
	session, err := preview.NewSession(preview.SessionConfig{
		Input:           s.Input,
		Host:            s.Host,
		Port:            s.Port,
		Watch:           s.Watch,
		LiveReload:      !s.NoLiveReload && g.Settings.Preview.LiveReload,
		Metrics:         handler,
		Builder:         g.newPipeline(compiler.NewMarkdown(compiler.WithLogger(g.Logger)), recorder),
		Supervisor:      g.Supervisor,
		Bus:             g.Bus,
		Debounce:        g.Settings.Watch.Debounce,
		FailurePolicy:   policy,
		ShutdownTimeout: g.Settings.Preview.ShutdownTimeout,
		Recorder:        recorder,
		Logger:          g.Logger,
		OnReady: func(addr string, _ *pipeline.Result) {
			out.say("I managed to build '%s'", s.Input)
			out.say("Now I am spawning local server which will serve the presentation")
			out.say("Open http://%s in your browser", displayAddr(addr))
			if s.Watch {
				out.say("I am watching '%s' for changes", s.Input)
				stopFollowing = out.followWatch(g.Bus, s.Input)
				stopLogging = g.logWatchEvents(ctx)
			}
			out.newline()
		},
	})
	if err != nil {
		return err
	}

	err = session.Run(ctx)
	if stopLogging != nil {
		stopLogging()
	}
	if stopFollowing != nil {
		stopFollowing()
	}
	return err
}

// displayAddr swaps an unspecified listen host for localhost.
func displayAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
