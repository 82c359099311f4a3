package preview

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
)

// TempArtifactExt is the extension of the compiled document a serve session
// writes next to its input.
const TempArtifactExt = ".tmp"

// TempArtifact is the compiled document of one serve session. It lives in the
// input's directory so relative references resolve when served, and is
// removed once when the process exits.
type TempArtifact struct {
	path      string
	sessionID string

	once    sync.Once
	removed atomic.Bool
	err     error
}

// NewTempArtifact derives the artifact for input inside root:
// <root>/<input base name without extension>.tmp. Nothing is created on disk.
func NewTempArtifact(input, root string) *TempArtifact {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + TempArtifactExt
	return &TempArtifact{
		path:      filepath.Join(root, name),
		sessionID: uuid.NewString(),
	}
}

// Path returns the artifact location.
func (t *TempArtifact) Path() string { return t.path }

// SessionID identifies the serve session that owns the artifact.
func (t *TempArtifact) SessionID() string { return t.sessionID }

// Removed reports whether Remove has run.
func (t *TempArtifact) Removed() bool { return t.removed.Load() }

// Remove deletes the artifact. Only the first call touches the filesystem;
// later calls return the first result. A missing file is not an error.
func (t *TempArtifact) Remove() error {
	t.once.Do(func() {
		defer t.removed.Store(true)
		if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.err = ferrors.WrapError(err, ferrors.CategoryOutputWrite, "cannot remove temporary artifact").
				WithContext("path", t.path).
				Build()
		}
	})
	return t.err
}
