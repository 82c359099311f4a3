//go:build unix

package lifecycle

import (
	"context"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
)

func TestRun_SIGINTExitsZero(t *testing.T) {
	s := newTestSupervisor(io.Discard)

	cleaned := false
	s.OnExit("cleanup", func(int) { cleaned = true })

	code := s.Run(context.Background(), func(ctx context.Context) error {
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGINT); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})

	assert.Equal(t, ferrors.ExitOK, code)
	assert.True(t, cleaned)
}
