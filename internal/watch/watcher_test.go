package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/preleganto/internal/compiler"
	"git.home.luguber.info/inful/preleganto/internal/config"
	"git.home.luguber.info/inful/preleganto/internal/events"
	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
	"git.home.luguber.info/inful/preleganto/internal/pipeline"
)

const waitTimeout = 2 * time.Second

// notificationRecorder signals every processed watch notification.
type notificationRecorder struct {
	metrics.NoopRecorder
	seen chan string
}

func newNotificationRecorder() *notificationRecorder {
	return &notificationRecorder{seen: make(chan string, 64)}
}

func (r *notificationRecorder) IncWatchNotification(kind string, _ bool) {
	r.seen <- kind
}

func (r *notificationRecorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := range n {
		select {
		case <-r.seen:
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for notification %d of %d", i+1, n)
		}
	}
}

// countingBuilder counts builds and optionally blocks each one until released.
type countingBuilder struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	fail    func(call int32) error
}

func newCountingBuilder(blocking bool) *countingBuilder {
	b := &countingBuilder{started: make(chan struct{}, 16)}
	if blocking {
		b.release = make(chan struct{})
	}
	return b
}

func (b *countingBuilder) Build(_ context.Context, input, output string, _ config.BuildConfig) (*pipeline.Result, error) {
	n := b.calls.Add(1)
	b.started <- struct{}{}
	if b.release != nil {
		<-b.release
	}
	if b.fail != nil {
		if err := b.fail(n); err != nil {
			return nil, err
		}
	}
	return &pipeline.Result{Input: input, Output: output, Fingerprint: "fp", Bytes: 1}, nil
}

type harness struct {
	w        *Watcher
	events   chan fsnotify.Event
	clock    *fakeClock
	recorder *notificationRecorder
	bus      *events.Bus
	runErr   chan error
	cancel   context.CancelFunc
}

func startHarness(t *testing.T, builder Builder, policy config.RebuildFailurePolicy) *harness {
	t.Helper()

	h := &harness{
		events:   make(chan fsnotify.Event),
		clock:    newFakeClock(),
		recorder: newNotificationRecorder(),
		bus:      events.NewBus(),
		runErr:   make(chan error, 1),
	}
	t.Cleanup(h.bus.Close)

	cfg := Config{
		Path:          "slides.md",
		Output:        "slides.html",
		Builder:       builder,
		Debounce:      time.Second,
		Clock:         h.clock,
		FailurePolicy: policy,
		Bus:           h.bus,
		Recorder:      h.recorder,
	}
	h.w = newWatcher(cfg, "/tmp/slides.md", h.events, make(chan error), func() error { return nil })
	return h
}

func (h *harness) run() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.w.Run(ctx) }()
}

func (h *harness) send(op fsnotify.Op) {
	h.events <- fsnotify.Event{Name: "/tmp/slides.md", Op: op}
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	return h.result(t)
}

func (h *harness) result(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.runErr:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("watcher did not stop")
		return nil
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func TestRun_EqualKeysRebuildOnce(t *testing.T) {
	builder := newCountingBuilder(false)
	h := startHarness(t, builder, "")
	completed, unsubscribe := events.Subscribe[events.BuildCompleted](h.bus, 4)
	defer unsubscribe()
	h.run()

	h.send(fsnotify.Write)
	h.send(fsnotify.Write)
	h.recorder.wait(t, 2)

	got := waitFor(t, completed)
	assert.Equal(t, 1, got.Seq)
	assert.Equal(t, "fp", got.Fingerprint)

	require.NoError(t, h.stop(t))
	assert.Equal(t, int32(1), builder.calls.Load())
}

func TestRun_DistinctKeysRebuildTwice(t *testing.T) {
	builder := newCountingBuilder(false)
	h := startHarness(t, builder, "")
	completed, unsubscribe := events.Subscribe[events.BuildCompleted](h.bus, 4)
	defer unsubscribe()
	h.run()

	h.send(fsnotify.Write)
	waitFor(t, completed)

	h.clock.Advance(time.Second)
	h.send(fsnotify.Create)
	second := waitFor(t, completed)
	assert.Equal(t, 2, second.Seq)

	require.NoError(t, h.stop(t))
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestRun_ChmodIgnored(t *testing.T) {
	builder := newCountingBuilder(false)
	h := startHarness(t, builder, "")
	h.run()

	h.send(fsnotify.Chmod)
	h.recorder.wait(t, 1)

	require.NoError(t, h.stop(t))
	assert.Equal(t, int32(0), builder.calls.Load())
	assert.Equal(t, StateIdle, h.w.State())
}

func TestRun_RemovalTerminates(t *testing.T) {
	builder := newCountingBuilder(false)
	h := startHarness(t, builder, "")
	terminated, unsubscribe := events.Subscribe[events.WatchTerminated](h.bus, 1)
	defer unsubscribe()
	h.run()

	h.send(fsnotify.Remove)

	err := h.result(t)
	require.Error(t, err)
	assert.True(t, ferrors.IsWatchTargetRemoved(err))
	assert.Equal(t, StateTerminated, h.w.State())
	assert.Equal(t, "/tmp/slides.md", waitFor(t, terminated).Path)
	assert.Equal(t, int32(0), builder.calls.Load())
}

func TestRun_RenameDuringBuildWaitsAndSkipsPending(t *testing.T) {
	builder := newCountingBuilder(true)
	h := startHarness(t, builder, "")
	completed, unsubscribe := events.Subscribe[events.BuildCompleted](h.bus, 4)
	defer unsubscribe()
	h.run()

	h.send(fsnotify.Write)
	waitFor(t, builder.started)

	h.clock.Advance(time.Second)
	h.send(fsnotify.Write) // queued behind the running build
	h.send(fsnotify.Rename)

	select {
	case <-h.runErr:
		t.Fatal("Run returned while a build was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(builder.release)
	err := h.result(t)
	assert.True(t, ferrors.IsWatchTargetRemoved(err))
	assert.Equal(t, int32(1), builder.calls.Load())
	assert.Equal(t, StateTerminated, h.w.State())

	select {
	case evt := <-completed:
		t.Fatalf("unexpected completion after termination: %+v", evt)
	default:
	}
}

func TestRun_PendingTriggersCoalesce(t *testing.T) {
	builder := newCountingBuilder(true)
	h := startHarness(t, builder, "")
	completed, unsubscribe := events.Subscribe[events.BuildCompleted](h.bus, 4)
	defer unsubscribe()
	h.run()

	h.send(fsnotify.Write)
	waitFor(t, builder.started)

	for range 3 {
		h.clock.Advance(time.Second)
		h.send(fsnotify.Write)
	}
	h.recorder.wait(t, 4)
	assert.Equal(t, StateBuilding, h.w.State())

	close(builder.release)
	waitFor(t, completed)
	second := waitFor(t, completed)
	assert.Equal(t, 2, second.Seq)

	require.NoError(t, h.stop(t))
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestRun_FailureExitPolicy(t *testing.T) {
	cause := ferrors.CompileFailure("bad deck").Build()
	builder := newCountingBuilder(false)
	builder.fail = func(int32) error { return cause }

	h := startHarness(t, builder, config.RebuildFailureExit)
	failed, unsubscribe := events.Subscribe[events.BuildFailed](h.bus, 1)
	defer unsubscribe()
	h.run()

	h.send(fsnotify.Write)

	err := h.result(t)
	require.ErrorIs(t, err, cause)
	assert.True(t, errors.Is(waitFor(t, failed).Err, cause))
}

func TestRun_FailureContinuePolicy(t *testing.T) {
	builder := newCountingBuilder(false)
	builder.fail = func(n int32) error {
		if n == 1 {
			return ferrors.CompileFailure("bad deck").Build()
		}
		return nil
	}

	h := startHarness(t, builder, config.RebuildFailureContinue)
	completed, unsubCompleted := events.Subscribe[events.BuildCompleted](h.bus, 4)
	defer unsubCompleted()
	failed, unsubFailed := events.Subscribe[events.BuildFailed](h.bus, 4)
	defer unsubFailed()
	h.run()

	h.send(fsnotify.Write)
	assert.True(t, waitFor(t, failed).Retryable)

	h.clock.Advance(time.Second)
	h.send(fsnotify.Write)
	got := waitFor(t, completed)
	assert.Equal(t, 1, got.Seq)

	require.NoError(t, h.stop(t))
	assert.Equal(t, int32(2), builder.calls.Load())
}

func TestRun_WriteFailureIsNotRetryable(t *testing.T) {
	builder := newCountingBuilder(false)
	builder.fail = func(int32) error { return ferrors.OutputWriteFailure("read-only").Build() }

	h := startHarness(t, builder, config.RebuildFailureContinue)
	failed, unsubscribe := events.Subscribe[events.BuildFailed](h.bus, 1)
	defer unsubscribe()
	h.run()

	h.send(fsnotify.Write)
	assert.False(t, waitFor(t, failed).Retryable)
	require.NoError(t, h.stop(t))
}

func TestRun_OnlyOnce(t *testing.T) {
	h := startHarness(t, newCountingBuilder(false), "")
	h.run()
	h.send(fsnotify.Chmod)
	h.recorder.wait(t, 1)

	err := h.w.Run(context.Background())
	require.Error(t, err)
	require.NoError(t, h.stop(t))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Path: filepath.Join(t.TempDir(), "missing.md"), Builder: newCountingBuilder(false)})
	require.Error(t, err)
	assert.True(t, ferrors.IsInputNotFound(err))
}

func TestWatcher_RealFilesystem(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "slides.md")
	output := filepath.Join(dir, "slides.html")
	require.NoError(t, os.WriteFile(input, []byte("# One"), 0o600))

	bus := events.NewBus()
	defer bus.Close()
	completed, unsubscribe := events.Subscribe[events.BuildCompleted](bus, 8)
	defer unsubscribe()

	cfg, err := config.NewBuildConfig(input, false)
	require.NoError(t, err)

	w, err := New(Config{
		Path:        input,
		Output:      output,
		BuildConfig: cfg,
		Builder:     pipeline.New(compiler.NewMarkdown()),
		Debounce:    10 * time.Millisecond,
		Bus:         bus,
	})
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(context.Background()) }()

	// Keep writing until the loop has picked up a change.
	deadline := time.After(waitTimeout)
	for done := false; !done; {
		f, err := os.OpenFile(input, os.O_WRONLY|os.O_APPEND, 0o600)
		require.NoError(t, err)
		_, err = f.WriteString("\n# Two\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
		select {
		case <-completed:
			done = true
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no rebuild after write")
		}
	}

	html, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1>Two</h1>")

	require.NoError(t, os.Remove(input))
	select {
	case err := <-runErr:
		assert.True(t, ferrors.IsWatchTargetRemoved(err))
	case <-time.After(waitTimeout):
		t.Fatal("watcher did not terminate after removal")
	}
	assert.Equal(t, StateTerminated, w.State())
}
