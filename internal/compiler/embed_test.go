package compiler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/preleganto/internal/config"
	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func newTestEmbedder() *Embedder {
	opts := DefaultEmbedOptions()
	opts.Retries = 0
	return NewEmbedder(opts)
}

func TestEmbedder_LocalAssets(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pixel.png"), pngPixel, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "theme.css"), []byte("body{color:red}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("var x = 1 < 2;"), 0o600))

	doc := `<!DOCTYPE html><html><head><link rel="stylesheet" href="theme.css"></head>` +
		`<body><img src="pixel.png"><img src="/pixel.png"><img src="data:image/gif;base64,AA=="><script src="app.js"></script></body></html>`

	out, err := newTestEmbedder().Embed(context.Background(), doc, root)
	require.NoError(t, err)

	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<style>body{color:red}</style>")
	assert.NotContains(t, out, "theme.css")
	assert.Contains(t, out, `src="data:image/png;base64,`)
	assert.Contains(t, out, `src="data:image/gif;base64,AA=="`)
	assert.Contains(t, out, "<script>var x = 1 < 2;</script>")
	assert.NotContains(t, out, "pixel.png")
}

func TestEmbedder_MissingLocalAsset(t *testing.T) {
	_, err := newTestEmbedder().Embed(context.Background(), `<img src="nope.png">`, t.TempDir())
	require.Error(t, err)
	assert.True(t, ferrors.IsCompileFailure(err))
}

func TestEmbedder_RemoteAssetCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngPixel)
	}))
	defer srv.Close()

	doc := `<img src="` + srv.URL + `/a.png"><img src="` + srv.URL + `/a.png">`
	out, err := newTestEmbedder().Embed(context.Background(), doc, t.TempDir())
	require.NoError(t, err)

	assert.Contains(t, out, "data:image/png;base64,")
	assert.Equal(t, int32(1), hits.Load())
}

func TestEmbedder_RemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestEmbedder().Embed(context.Background(), `<img src="`+srv.URL+`/missing.png">`, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryNetwork, ferrors.GetCategory(err))
}

func TestMarkdown_CompileWithEmbed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pixel.png"), pngPixel, 0o600))

	m := NewMarkdown(WithEmbedder(newTestEmbedder()))
	out, err := m.Compile(context.Background(), "# Pic\n\n![p](pixel.png)\n", config.BuildConfig{RootPath: root, Embed: true})
	require.NoError(t, err)
	assert.Contains(t, out, "data:image/png;base64,")
}

func TestEmbedder_AssetSizeLimit(t *testing.T) {
	opts := DefaultEmbedOptions()
	opts.Retries = 0
	opts.MaxAssetSize = 16
	e := NewEmbedder(opts)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "fits.js"), make([]byte, 16), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.js"), make([]byte, 17), 0o600))

	a, err := e.load(context.Background(), "fits.js", root)
	require.NoError(t, err)
	assert.Len(t, a.data, 16)

	_, err = e.load(context.Background(), "big.js", root)
	require.Error(t, err)
	assert.True(t, ferrors.IsCompileFailure(err))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 17))
	}))
	defer srv.Close()

	_, err = e.load(context.Background(), srv.URL+"/big.js", root)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryNetwork, ferrors.GetCategory(err))
}

func TestNewEmbedder_NoRequestTimeoutByDefault(t *testing.T) {
	e := NewEmbedder(DefaultEmbedOptions())
	assert.Zero(t, e.client.HTTPClient.Timeout)
	assert.Equal(t, int64(DefaultMaxAssetSize), e.maxSize)

	opts := DefaultEmbedOptions()
	opts.Timeout = 2 * time.Second
	assert.Equal(t, 2*time.Second, NewEmbedder(opts).client.HTTPClient.Timeout)
}
