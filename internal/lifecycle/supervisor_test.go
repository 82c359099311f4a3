package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
)

func newTestSupervisor(out io.Writer) *Supervisor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	adapter := ferrors.NewCLIErrorAdapter(false, logger).WithOutput(out)
	return NewSupervisor(adapter, WithLogger(logger))
}

func TestShutdown_RunsHooksOnceInReverseOrder(t *testing.T) {
	s := newTestSupervisor(io.Discard)

	var order []string
	var codes []int
	s.OnExit("first", func(code int) {
		order = append(order, "first")
		codes = append(codes, code)
	})
	s.OnExit("second", func(int) { order = append(order, "second") })

	s.Shutdown(3)
	s.Shutdown(0)

	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, []int{3}, codes)
}

func TestShutdown_PanickingHookDoesNotStopOthers(t *testing.T) {
	s := newTestSupervisor(io.Discard)

	ran := false
	s.OnExit("survivor", func(int) { ran = true })
	s.OnExit("boom", func(int) { panic("boom") })

	require.NotPanics(t, func() { s.Shutdown(0) })
	assert.True(t, ran)
}

func TestOnExit_AfterShutdownNeverRuns(t *testing.T) {
	s := newTestSupervisor(io.Discard)
	s.Shutdown(0)

	ran := false
	s.OnExit("late", func(int) { ran = true })
	s.Shutdown(0)
	assert.False(t, ran)
}

func TestRun_SuccessExitsZero(t *testing.T) {
	s := newTestSupervisor(io.Discard)
	got := -1
	s.OnExit("record", func(code int) { got = code })

	code := s.Run(context.Background(), func(context.Context) error { return nil })
	assert.Equal(t, ferrors.ExitOK, code)
	assert.Equal(t, ferrors.ExitOK, got)
}

func TestRun_ClassifiedErrorsMapToExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "input not found", err: ferrors.InputNotFound("missing").Build(), want: ferrors.ExitInputNotFound},
		{name: "compile", err: ferrors.CompileFailure("broken").Build(), want: ferrors.ExitCompile},
		{name: "output write", err: ferrors.OutputWriteFailure("ro").Build(), want: ferrors.ExitOutputWrite},
		{name: "watch target removed", err: ferrors.WatchTargetRemoved("gone").Build(), want: ferrors.ExitOK},
		{name: "plain", err: errors.New("plain"), want: ferrors.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			s := newTestSupervisor(&out)
			got := -1
			s.OnExit("record", func(code int) { got = code })

			code := s.Run(context.Background(), func(context.Context) error { return tt.err })
			assert.Equal(t, tt.want, code)
			assert.Equal(t, tt.want, got)
			if tt.want != ferrors.ExitOK {
				assert.NotEmpty(t, out.String())
			} else {
				assert.Empty(t, out.String())
			}
		})
	}
}

func TestRun_InterruptExitsZeroAndRunsHooks(t *testing.T) {
	var out bytes.Buffer
	s := newTestSupervisor(&out)

	hookRuns := 0
	s.OnExit("cleanup", func(code int) {
		hookRuns++
		assert.Equal(t, ferrors.ExitOK, code)
	})

	code := s.Run(context.Background(), func(ctx context.Context) error {
		s.Interrupt()
		<-ctx.Done()
		return ctx.Err()
	})

	assert.Equal(t, ferrors.ExitOK, code)
	assert.Equal(t, 1, hookRuns)
	assert.Empty(t, out.String())
}

func TestExitCode(t *testing.T) {
	s := newTestSupervisor(io.Discard)
	assert.Equal(t, ferrors.ExitOK, s.ExitCode(ferrors.CompileFailure("x").Build(), true))
	assert.Equal(t, ferrors.ExitCompile, s.ExitCode(ferrors.CompileFailure("x").Build(), false))
	assert.Equal(t, ferrors.ExitOK, s.ExitCode(nil, false))
}
