// Package watch rebuilds a deck whenever its source file changes.
//
// A Watcher observes exactly one file. Content changes are debounced by
// trigger key (see Debouncer) and rebuilt one at a time on a single worker;
// a change accepted while a build runs is queued, and further accepted
// changes collapse into that one pending rebuild. Removing or renaming the
// file ends the session for good.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/preleganto/internal/config"
	"git.home.luguber.info/inful/preleganto/internal/events"
	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/logfields"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
	"git.home.luguber.info/inful/preleganto/internal/pipeline"
)

// Builder runs one build. *pipeline.Pipeline implements it.
type Builder interface {
	Build(ctx context.Context, input, output string, cfg config.BuildConfig) (*pipeline.Result, error)
}

// BuildFunc adapts a function to Builder.
type BuildFunc func(ctx context.Context, input, output string, cfg config.BuildConfig) (*pipeline.Result, error)

// Build calls f.
func (f BuildFunc) Build(ctx context.Context, input, output string, cfg config.BuildConfig) (*pipeline.Result, error) {
	return f(ctx, input, output, cfg)
}

// Config holds the parameters for a Watcher.
type Config struct {
	// Path is the source file to observe.
	Path string
	// Output is where rebuilds write.
	Output      string
	BuildConfig config.BuildConfig
	Builder     Builder

	// Debounce is the trigger key resolution. Zero means DefaultDebounce.
	Debounce time.Duration
	Clock    Clock

	// FailurePolicy decides whether a failed rebuild ends the session.
	// Empty means config.RebuildFailureExit.
	FailurePolicy config.RebuildFailurePolicy

	// Bus receives BuildStarted, BuildCompleted, BuildFailed and
	// WatchTerminated. It may be nil.
	Bus      *events.Bus
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Watcher is a single watch session. Run must be called exactly once.
type Watcher struct {
	cfg       Config
	path      string
	debouncer *Debouncer
	recorder  metrics.Recorder
	logger    *slog.Logger

	fsEvents <-chan fsnotify.Event
	fsErrors <-chan error
	closeFS  func() error

	state   atomic.Int32
	started atomic.Bool
	seq     int
}

type notification int

const (
	notifyIgnored notification = iota
	notifyModified
	notifyRemoved
)

// classify maps an fsnotify operation onto what the session cares about.
func classify(op fsnotify.Op) notification {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return notifyRemoved
	case op.Has(fsnotify.Write), op.Has(fsnotify.Create):
		return notifyModified
	default:
		return notifyIgnored
	}
}

func (n notification) String() string {
	switch n {
	case notifyModified:
		return "modified"
	case notifyRemoved:
		return "removed"
	default:
		return "ignored"
	}
}

// New validates cfg and starts observing cfg.Path.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, ferrors.ValidationError("watch path is required").Build()
	}
	if cfg.Builder == nil {
		return nil, ferrors.ValidationError("watch builder is required").Build()
	}

	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "cannot resolve watch path").
			WithContext("path", cfg.Path).
			Build()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "create file watcher").Build()
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryInputNotFound, "cannot watch input file").
			WithContext("path", abs).
			Build()
	}

	return newWatcher(cfg, abs, fsw.Events, fsw.Errors, fsw.Close), nil
}

func newWatcher(cfg Config, path string, fsEvents <-chan fsnotify.Event, fsErrors <-chan error, closeFS func() error) *Watcher {
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = config.RebuildFailureExit
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		cfg:       cfg,
		path:      path,
		debouncer: NewDebouncer(cfg.Debounce, cfg.Clock),
		recorder:  cfg.Recorder,
		logger:    cfg.Logger.With(logfields.Path(path)),
		fsEvents:  fsEvents,
		fsErrors:  fsErrors,
		closeFS:   closeFS,
	}
}

// Path returns the absolute path being observed.
func (w *Watcher) Path() string { return w.path }

// State returns the current session state.
func (w *Watcher) State() State { return State(w.state.Load()) }

// Run processes change notifications until ctx is cancelled, the watched
// file disappears, or a rebuild fails under the exit policy.
//
// Cancellation returns nil. Removal returns a watch_target_removed error.
// A failed rebuild under the exit policy returns the build error. In every
// case Run waits for an in-flight build to finish before returning.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ferrors.InternalError("watcher Run called more than once").Build()
	}
	defer func() {
		if err := w.closeFS(); err != nil {
			w.logger.Warn("Failed to close file watcher", logfields.Error(err))
		}
	}()

	// Capacity one: the running build has already taken its trigger off the
	// channel, so at most one more can wait.
	triggers := make(chan time.Time, 1)
	fatal := make(chan error, 1)
	done := make(chan struct{})
	go w.worker(ctx, triggers, fatal, done)

	stop := func() {
		select {
		case <-triggers:
		default:
		}
		close(triggers)
		<-done
	}

	w.logger.Info("Watching for changes", logfields.Duration(w.debouncer.Interval()))

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case err := <-fatal:
			stop()
			return err

		case evt, ok := <-w.fsEvents:
			if !ok {
				stop()
				return ferrors.RuntimeError("file watcher event channel closed").Build()
			}

			kind := classify(evt.Op)
			switch kind {
			case notifyIgnored:
				w.recorder.IncWatchNotification(kind.String(), false)

			case notifyRemoved:
				w.recorder.IncWatchNotification(kind.String(), true)
				return w.terminate(ctx, evt, stop)

			case notifyModified:
				key, accepted := w.debouncer.Accept()
				w.recorder.IncWatchNotification(kind.String(), accepted)
				if !accepted {
					w.logger.Debug("Change debounced", logfields.Trigger(key))
					continue
				}
				select {
				case triggers <- key:
					w.logger.Debug("Change accepted", logfields.Trigger(key))
				default:
					w.logger.Debug("Change coalesced into pending rebuild", logfields.Trigger(key))
				}
			}

		case err, ok := <-w.fsErrors:
			if !ok {
				continue
			}
			w.logger.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) terminate(ctx context.Context, evt fsnotify.Event, stop func()) error {
	w.state.Store(int32(StateTerminated))
	w.logger.Info("Watched file was removed or renamed, stopping",
		logfields.Op(evt.Op.String()),
		logfields.State(StateTerminated.String()))

	w.publish(ctx, events.WatchTerminated{
		Path:   w.path,
		Reason: evt.Op.String(),
		At:     w.debouncer.clock.Now(),
	})

	stop()

	return ferrors.WatchTargetRemoved("watched file was removed or renamed").
		WithContext("path", w.path).
		WithContext("op", evt.Op.String()).
		Build()
}

// worker runs builds strictly one after another.
func (w *Watcher) worker(ctx context.Context, triggers <-chan time.Time, fatal chan<- error, done chan<- struct{}) {
	defer close(done)

	// An interrupt must not abort a build halfway through writing output.
	buildCtx := context.WithoutCancel(ctx)

	for key := range triggers {
		if ctx.Err() != nil {
			continue
		}
		if !w.state.CompareAndSwap(int32(StateIdle), int32(StateBuilding)) {
			// Terminated.
			continue
		}

		if err := w.rebuild(ctx, buildCtx, key); err != nil {
			if w.cfg.FailurePolicy == config.RebuildFailureExit {
				fatal <- err
				return
			}
		}
	}
}

func (w *Watcher) rebuild(ctx, buildCtx context.Context, key time.Time) error {
	w.logger.Info("Rebuilding", logfields.Trigger(key))
	w.publish(ctx, events.BuildStarted{Input: w.cfg.Path, Output: w.cfg.Output, TriggeredAt: key})

	res, err := w.cfg.Builder.Build(buildCtx, w.cfg.Path, w.cfg.Output, w.cfg.BuildConfig)

	if !w.state.CompareAndSwap(int32(StateBuilding), int32(StateIdle)) {
		// Terminated while building; nobody is interested in the result.
		return nil
	}

	if err != nil {
		retryable := false
		if classified, ok := ferrors.AsClassified(err); ok {
			retryable = classified.CanRetry()
		}
		w.logger.Error("Rebuild failed",
			logfields.Trigger(key),
			logfields.Error(err),
			slog.Bool("retry_on_change", retryable))
		w.publish(ctx, events.BuildFailed{Input: w.cfg.Path, Err: err, TriggeredAt: key, Retryable: retryable})
		return err
	}

	w.seq++
	w.publish(ctx, events.BuildCompleted{
		Input:       res.Input,
		Output:      res.Output,
		Fingerprint: res.Fingerprint,
		Bytes:       res.Bytes,
		Duration:    res.Duration,
		TriggeredAt: key,
		Seq:         w.seq,
	})
	return nil
}

func (w *Watcher) publish(ctx context.Context, evt events.Event) {
	if err := w.cfg.Bus.Publish(ctx, evt); err != nil && ctx.Err() == nil {
		w.logger.Warn("Failed to publish watch event", slog.String("event", evt.EventName()), logfields.Error(err))
	}
}
