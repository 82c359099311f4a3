package preview

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/preleganto/internal/foundation/errors"
	"git.home.luguber.info/inful/preleganto/internal/logfields"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
)

const (
	livereloadPath   = "/livereload"
	livereloadJSPath = "/livereload.js"
)

// DefaultHost keeps the preview off the network unless asked otherwise.
const DefaultHost = "localhost"

// ServerConfig configures the preview server.
type ServerConfig struct {
	// Artifact is the compiled document served at "/".
	Artifact string
	// RootPath is served for every other path so relative assets resolve.
	RootPath string
	// Host defaults to localhost.
	Host string
	// Port 0 picks a free port.
	Port       int
	LiveReload bool
	// Metrics, when set, is mounted at /metrics.
	Metrics  http.Handler
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Server serves one deck with optional live reload.
type Server struct {
	cfg     ServerConfig
	hub     *LiveReloadHub
	httpErr *ferrors.HTTPErrorAdapter
	logger  *slog.Logger

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	errs chan error
}

// NewServer creates a Server. Start binds it.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NoopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	return &Server{
		cfg:     cfg,
		hub:     NewLiveReloadHub(cfg.Recorder, cfg.Logger),
		httpErr: ferrors.NewHTTPErrorAdapter(cfg.Logger),
		logger:  cfg.Logger,
		errs:    make(chan error, 1),
	}
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *LiveReloadHub { return s.hub }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.cfg.LiveReload {
		mux.Handle(livereloadPath, s.hub)
		mux.HandleFunc(livereloadJSPath, handleLiveReloadScript)
	}
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics)
	}

	static := http.FileServer(http.Dir(s.cfg.RootPath))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "/index.html" {
			s.handleDeck(w, r)
			return
		}
		// Dotfiles next to the deck (.env, .git) are never served.
		if hasDotSegment(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		static.ServeHTTP(w, r)
	})
	return mux
}

func hasDotSegment(urlPath string) bool {
	for _, seg := range strings.Split(urlPath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// Start binds the listener and serves in the background. Serve failures after
// Start are reported on Err.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ferrors.InternalError("preview server already started").Build()
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "cannot start preview server").
			WithContext("addr", addr).
			Build()
	}

	// No write timeout: the live-reload stream is long lived.
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- ferrors.WrapError(err, ferrors.CategoryRuntime, "preview server failed").Build()
		}
	}()

	s.logger.Info("Preview server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	if tcp, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Err delivers a serve failure that happened after Start.
func (s *Server) Err() <-chan error { return s.errs }

// ReloadClients tells connected browsers that the deck changed. It never
// blocks on slow clients.
func (s *Server) ReloadClients(hash string) {
	if !s.cfg.LiveReload {
		return
	}
	if s.hub.Broadcast(hash) {
		s.logger.Debug("Reloading clients", logfields.Hash(hash))
	}
}

// Stop disconnects live-reload clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Shutdown()

	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "preview server shutdown").Build()
	}
	return nil
}

func (s *Server) handleDeck(w http.ResponseWriter, r *http.Request) {
	doc, err := os.ReadFile(s.cfg.Artifact)
	if err != nil {
		s.httpErr.WriteError(w, r, ferrors.WrapError(err, ferrors.CategoryInputNotFound, "presentation not built yet").Build())
		return
	}

	if s.cfg.LiveReload {
		injected, err := injectScript(doc, livereloadJSPath)
		if err != nil {
			s.logger.Warn("Failed to inject live reload script", logfields.Error(err))
		} else {
			doc = injected
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(doc); err != nil {
		s.logger.Debug("deck write", logfields.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func handleLiveReloadScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(LiveReloadScript))
}
