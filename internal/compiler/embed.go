package compiler

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru/v2"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/logfields"
)

// DefaultMaxAssetSize bounds a single inlined asset.
const DefaultMaxAssetSize = 32 << 20

// EmbedOptions configures an Embedder.
type EmbedOptions struct {
	Retries   int
	CacheSize int
	UserAgent string
	Logger    *slog.Logger

	// Timeout bounds each remote request. Zero means no timeout; the build
	// context still cancels fetches.
	Timeout time.Duration

	// MaxAssetSize is the largest asset in bytes that is inlined. Larger
	// assets fail the build instead of being truncated.
	MaxAssetSize int64
}

// DefaultEmbedOptions returns the options used when none are configured.
func DefaultEmbedOptions() EmbedOptions {
	return EmbedOptions{
		Retries:   3,
		CacheSize: 128,
		UserAgent:    "preleganto",
		MaxAssetSize: DefaultMaxAssetSize,
	}
}

// Embedder inlines images, stylesheets and scripts referenced by an HTML
// document so the result has no external dependencies.
//
// Local references resolve against the deck's root directory. Remote ones are
// fetched over HTTP with retries. Fetched assets are cached for the lifetime
// of the Embedder.
type Embedder struct {
	client    *retryablehttp.Client
	cache     *lru.Cache[string, asset]
	userAgent string
	maxSize   int64
	logger    *slog.Logger
}

type asset struct {
	data []byte
	mime string
}

// NewEmbedder creates an Embedder.
func NewEmbedder(opts EmbedOptions) *Embedder {
	defaults := DefaultEmbedOptions()
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaults.CacheSize
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout < 0 {
		opts.Timeout = 0
	}
	if opts.MaxAssetSize <= 0 {
		opts.MaxAssetSize = defaults.MaxAssetSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = nil

	// Only fails for a non-positive size, which is excluded above.
	cache, _ := lru.New[string, asset](opts.CacheSize)

	return &Embedder{
		client:    client,
		cache:     cache,
		userAgent: opts.UserAgent,
		maxSize:   opts.MaxAssetSize,
		logger:    opts.Logger,
	}
}

// Embed rewrites document with every supported external reference inlined.
func (e *Embedder) Embed(ctx context.Context, document, root string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryCompile, "parse generated document").Build()
	}

	var firstErr error
	fail := func(err error) bool {
		firstErr = err
		return false
	}

	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if skipRef(src) {
			return true
		}
		a, err := e.load(ctx, src, root)
		if err != nil {
			return fail(err)
		}
		s.SetAttr("src", dataURI(a))
		return true
	})
	if firstErr != nil {
		return "", firstErr
	}

	doc.Find(`link[rel="stylesheet"][href]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if skipRef(href) {
			return true
		}
		a, err := e.load(ctx, href, root)
		if err != nil {
			return fail(err)
		}
		s.ReplaceWithHtml("<style>" + string(a.data) + "</style>")
		return true
	})
	if firstErr != nil {
		return "", firstErr
	}

	doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if skipRef(src) {
			return true
		}
		a, err := e.load(ctx, src, root)
		if err != nil {
			return fail(err)
		}
		s.RemoveAttr("src")
		s.SetText(string(a.data))
		return true
	})
	if firstErr != nil {
		return "", firstErr
	}

	out, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryCompile, "render embedded document").Build()
	}
	return out, nil
}

func skipRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "data:")
}

func dataURI(a asset) string {
	return "data:" + a.mime + ";base64," + base64.StdEncoding.EncodeToString(a.data)
}

func (e *Embedder) load(ctx context.Context, ref, root string) (asset, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return asset{}, ferrors.WrapError(err, ferrors.CategoryCompile, "invalid asset reference").
			WithContext("ref", ref).
			Build()
	}

	var key string
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		key = u.String()
	case u.Scheme == "" && u.Host != "":
		u.Scheme = "https"
		key = u.String()
	case u.Scheme == "":
		// Root-relative paths are relative to the deck directory, as when served.
		key = filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(u.Path, "/")))
	default:
		return asset{}, ferrors.CompileFailure("unsupported asset scheme").
			WithContext("ref", ref).
			Build()
	}

	if a, ok := e.cache.Get(key); ok {
		return a, nil
	}

	var a asset
	if u.Scheme == "http" || u.Scheme == "https" {
		a, err = e.fetch(ctx, key)
	} else {
		a, err = e.readLocal(key)
	}
	if err != nil {
		return asset{}, err
	}
	e.cache.Add(key, a)
	e.logger.Debug("Embedded asset", logfields.Path(key), logfields.Bytes(len(a.data)))
	return a, nil
}

func (e *Embedder) readLocal(path string) (asset, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the deck author
	if err != nil {
		return asset{}, ferrors.WrapError(err, ferrors.CategoryCompile, "cannot read local asset").
			WithContext("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, e.maxSize+1))
	if err != nil {
		return asset{}, ferrors.WrapError(err, ferrors.CategoryCompile, "cannot read local asset").
			WithContext("path", path).
			Build()
	}
	if int64(len(data)) > e.maxSize {
		return asset{}, ferrors.CompileFailure("local asset too large to embed").
			WithContext("path", path).
			WithContext("limit", e.maxSize).
			Build()
	}
	return asset{data: data, mime: mimetype.Detect(data).String()}, nil
}

func (e *Embedder) fetch(ctx context.Context, rawURL string) (asset, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return asset{}, ferrors.WrapError(err, ferrors.CategoryNetwork, "build asset request").
			WithContext("url", rawURL).
			Build()
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return asset{}, ferrors.WrapError(err, ferrors.CategoryNetwork, "fetch remote asset").
			WithContext("url", rawURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return asset{}, ferrors.NetworkError(fmt.Sprintf("fetch remote asset: unexpected status %d", resp.StatusCode)).
			WithContext("url", rawURL).
			WithContext("status", resp.StatusCode).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxSize+1))
	if err != nil {
		return asset{}, ferrors.WrapError(err, ferrors.CategoryNetwork, "read remote asset").
			WithContext("url", rawURL).
			Build()
	}
	if int64(len(data)) > e.maxSize {
		return asset{}, ferrors.NetworkError("remote asset too large to embed").
			WithContext("url", rawURL).
			WithContext("limit", e.maxSize).
			Build()
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/octet-stream") {
		mime = mimetype.Detect(data).String()
	}
	return asset{data: data, mime: mime}, nil
}
