package preview

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/preleganto/internal/logfields"
	"git.home.luguber.info/inful/preleganto/internal/metrics"
)

const heartbeatInterval = 30 * time.Second

// LiveReloadHub fans deck fingerprints out to connected browsers over SSE.
// A browser reloads when it sees a fingerprint different from the first one
// it received.
type LiveReloadHub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*lrClient
	closed   bool
	lastHash string

	recorder metrics.Recorder
	logger   *slog.Logger
}

type lrClient struct {
	id   int
	ch   chan string
	done chan struct{}
}

// NewLiveReloadHub creates a hub. A nil recorder disables metrics.
func NewLiveReloadHub(recorder metrics.Recorder, logger *slog.Logger) *LiveReloadHub {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveReloadHub{clients: map[int]*lrClient{}, recorder: recorder, logger: logger}
}

// ServeHTTP implements the SSE endpoint.
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &lrClient{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.lastHash
	count := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(count)

	// The current fingerprint is the browser's baseline.
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		h.logger.Debug("livereload write", logfields.Error(err))
		h.removeClient(client.id)
		return
	}
	if current != "" {
		if _, err := bw.WriteString(hashEvent(current)); err != nil {
			h.logger.Debug("livereload write", logfields.Error(err))
			h.removeClient(client.id)
			return
		}
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			} else {
				h.logger.Debug("livereload ping write", logfields.Error(err))
			}
		case hash := <-client.ch:
			if _, err := bw.WriteString(hashEvent(hash)); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			} else {
				h.logger.Debug("livereload broadcast write", logfields.Error(err))
			}
		}
	}
}

func hashEvent(hash string) string {
	return "data: {\"hash\":\"" + hash + "\"}\n\n"
}

func (h *LiveReloadHub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.recorder.SetLiveReloadClients(count)
	}
}

// Broadcast sends hash to every client. An empty hash or one equal to the
// previous broadcast is ignored. Clients whose buffers are full are dropped;
// they reconnect on their own. It reports whether anything was sent.
func (h *LiveReloadHub) Broadcast(hash string) bool {
	h.mu.Lock()
	if h.closed || hash == "" || hash == h.lastHash {
		h.mu.Unlock()
		return false
	}
	h.lastHash = hash
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- hash:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.recorder.IncReloadBroadcast()
	h.logger.Debug("livereload broadcast",
		logfields.Hash(hash),
		slog.Int("clients", len(snapshot)),
		slog.Int("dropped", dropped))
	return true
}

// Seed sets the baseline fingerprint sent to newly connected clients without
// notifying anyone.
func (h *LiveReloadHub) Seed(hash string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastHash = hash
}

// LastHash returns the most recent fingerprint.
func (h *LiveReloadHub) LastHash() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastHash
}

// ClientCount returns the number of connected browsers.
func (h *LiveReloadHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects all clients and ignores later broadcasts.
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetLiveReloadClients(0)
}

// LiveReloadScript is served at /livereload.js and injected into the deck.
const LiveReloadScript = `(() => {
  if (window.__PRELEGANTO_LR__) return;
  window.__PRELEGANTO_LR__ = true;
  function connect() {
    const es = new EventSource('/livereload');
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) { location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`
