// Package lifecycle owns process shutdown: signal handling, exit hooks and the
// mapping from a command's outcome to an exit code.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/logfields"
)

// ExitHook runs once during shutdown with the final exit code.
type ExitHook func(code int)

type namedHook struct {
	name string
	fn   ExitHook
}

// Supervisor runs a command under signal handling and runs the registered
// exit hooks exactly once, in reverse registration order, whatever way the
// command ends.
type Supervisor struct {
	adapter *ferrors.CLIErrorAdapter
	logger  *slog.Logger
	signals []os.Signal

	mu        sync.Mutex
	hooks     []namedHook
	interrupt context.CancelFunc
	shutdown  sync.Once
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSignals overrides the signals treated as an interrupt.
func WithSignals(sig ...os.Signal) Option {
	return func(s *Supervisor) { s.signals = sig }
}

// NewSupervisor creates a Supervisor reporting fatal errors through adapter.
func NewSupervisor(adapter *ferrors.CLIErrorAdapter, opts ...Option) *Supervisor {
	s := &Supervisor{
		adapter: adapter,
		logger:  slog.Default(),
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.adapter == nil {
		s.adapter = ferrors.NewCLIErrorAdapter(false, s.logger)
	}
	return s
}

// OnExit registers hook under name. Hooks registered after Shutdown never run.
func (s *Supervisor) OnExit(name string, hook ExitHook) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, namedHook{name: name, fn: hook})
}

// Interrupt cancels the context of the running command as if an interrupt
// signal had arrived.
func (s *Supervisor) Interrupt() {
	s.mu.Lock()
	cancel := s.interrupt
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Shutdown runs the exit hooks with code. Only the first call has an effect.
// A panicking hook is logged and does not stop the remaining hooks.
func (s *Supervisor) Shutdown(code int) {
	s.shutdown.Do(func() {
		s.mu.Lock()
		hooks := s.hooks
		s.hooks = nil
		s.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			s.runHook(hooks[i], code)
		}
	})
}

func (s *Supervisor) runHook(h namedHook, code int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Exit hook panicked", slog.String("hook", h.name), slog.Any("panic", r))
		}
	}()
	s.logger.Debug("Running exit hook", slog.String("hook", h.name), slog.Int("code", code))
	h.fn(code)
}

// ExitCode maps the outcome of a command to a process exit code.
//
// An interrupted command exits 0. So does a watch session whose file went
// away. Everything else is classified by the CLI error adapter.
func (s *Supervisor) ExitCode(err error, interrupted bool) int {
	switch {
	case interrupted:
		return ferrors.ExitOK
	case err == nil:
		return ferrors.ExitOK
	case ferrors.IsWatchTargetRemoved(err):
		return ferrors.ExitOK
	default:
		return s.adapter.ExitCodeFor(err)
	}
}

// Run executes fn with a context that is cancelled on interrupt, reports a
// fatal error, runs the exit hooks and returns the exit code. It does not
// call os.Exit.
func (s *Supervisor) Run(ctx context.Context, fn func(ctx context.Context) error) int {
	sigCtx, stopSignals := signal.NotifyContext(ctx, s.signals...)
	runCtx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	s.mu.Lock()
	s.interrupt = cancel
	s.mu.Unlock()

	err := fn(runCtx)
	interrupted := runCtx.Err() != nil && ctx.Err() == nil
	stopSignals()

	code := s.ExitCode(err, interrupted)
	switch {
	case interrupted:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Command returned an error after interrupt", logfields.Error(err))
		}
		s.logger.Debug("Interrupted, shutting down")
	case err != nil && code == ferrors.ExitOK:
		s.logger.Info("Session ended", logfields.Error(err))
	case err != nil:
		s.adapter.Report(err)
	}

	s.Shutdown(code)
	return code
}
