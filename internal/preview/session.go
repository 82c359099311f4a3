package preview

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/preleganto/internal/config"
	"git.home.luguber.info/inful/preleganto/internal/events"
	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/lifecycle"
	"git.home.luguber.info/inful/preleganto/internal/logfields"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
	"git.home.luguber.info/inful/preleganto/internal/pipeline"
	"git.home.luguber.info/inful/preleganto/internal/watch"
)

const defaultShutdownTimeout = 5 * time.Second

// SessionConfig configures a serve session.
type SessionConfig struct {
	Input string
	Host  string
	Port  int
	Watch bool

	LiveReload bool
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler

	Builder watch.Builder
	// Supervisor receives the temp artifact removal hook. Without one the
	// artifact is removed when Run returns.
	Supervisor *lifecycle.Supervisor
	// Bus carries watch events. A private bus is used when nil.
	Bus *events.Bus

	Debounce      time.Duration
	Clock         watch.Clock
	FailurePolicy config.RebuildFailurePolicy

	ShutdownTimeout time.Duration
	Recorder        metrics.Recorder
	Logger          *slog.Logger

	// OnReady is called once the initial build succeeded and the server is
	// listening.
	OnReady func(addr string, res *pipeline.Result)
}

// Session is one serve invocation: build into a temp artifact, serve it and
// optionally rebuild on change, reloading browsers after each good build.
type Session struct {
	cfg    SessionConfig
	build  config.BuildConfig
	temp   *TempArtifact
	logger *slog.Logger
}

// NewSession validates cfg.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Input == "" {
		return nil, ferrors.ValidationError("missing required flag --input").Build()
	}
	if cfg.Builder == nil {
		return nil, ferrors.ValidationError("session builder is required").Build()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	bc, err := config.NewBuildConfig(cfg.Input, false)
	if err != nil {
		return nil, err
	}
	temp := NewTempArtifact(cfg.Input, bc.RootPath)

	return &Session{
		cfg:    cfg,
		build:  bc,
		temp:   temp,
		logger: cfg.Logger.With(logfields.Session(temp.SessionID())),
	}, nil
}

// TempArtifact returns the session's compiled document.
func (s *Session) TempArtifact() *TempArtifact { return s.temp }

// Run blocks until ctx is cancelled, the server fails, or the watch session
// ends. The returned error is what ended the session; cancellation is nil.
func (s *Session) Run(ctx context.Context) error {
	bc := s.build

	removeTemp := func(int) {
		if err := s.temp.Remove(); err != nil {
			s.logger.Warn("Failed to remove temporary artifact", logfields.Path(s.temp.Path()), logfields.Error(err))
			return
		}
		s.logger.Debug("Removed temporary artifact", logfields.Path(s.temp.Path()))
	}
	if s.cfg.Supervisor != nil {
		s.cfg.Supervisor.OnExit("remove temp artifact", removeTemp)
	} else {
		defer removeTemp(0)
	}

	res, err := s.cfg.Builder.Build(ctx, s.cfg.Input, s.temp.Path(), bc)
	if err != nil {
		return err
	}

	bus := s.cfg.Bus
	if bus == nil {
		bus = events.NewBus()
		defer bus.Close()
	}

	server := NewServer(ServerConfig{
		Artifact:   s.temp.Path(),
		RootPath:   bc.RootPath,
		Host:       s.cfg.Host,
		Port:       s.cfg.Port,
		LiveReload: s.cfg.LiveReload,
		Metrics:    s.cfg.Metrics,
		Recorder:   s.cfg.Recorder,
		Logger:     s.logger,
	})
	server.Hub().Seed(res.Fingerprint)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer s.stopServer(server)

	var watcher *watch.Watcher
	if s.cfg.Watch {
		watcher, err = watch.New(watch.Config{
			Path:          s.cfg.Input,
			Output:        s.temp.Path(),
			BuildConfig:   bc,
			Builder:       s.cfg.Builder,
			Debounce:      s.cfg.Debounce,
			Clock:         s.cfg.Clock,
			FailurePolicy: s.cfg.FailurePolicy,
			Bus:           bus,
			Recorder:      s.cfg.Recorder,
			Logger:        s.logger,
		})
		if err != nil {
			return err
		}
	}

	if s.cfg.OnReady != nil {
		s.cfg.OnReady(server.Addr(), res)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-server.Err():
			return err
		}
	})

	if watcher != nil {
		completed, unsubscribe := events.Subscribe[events.BuildCompleted](bus, 8)
		defer unsubscribe()

		g.Go(func() error { return watcher.Run(gctx) })
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case evt, ok := <-completed:
					if !ok {
						return nil
					}
					server.ReloadClients(evt.Fingerprint)
				}
			}
		})
	}

	return g.Wait()
}

func (s *Session) stopServer(server *Server) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		s.logger.Warn("Preview server shutdown error", logfields.Error(err))
	}
}
