package preview

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/preleganto/internal/metrics"
)

type reloadRecorder struct {
	metrics.NoopRecorder
	broadcasts atomic.Int32
	clients    atomic.Int32
}

func (r *reloadRecorder) IncReloadBroadcast()        { r.broadcasts.Add(1) }
func (r *reloadRecorder) SetLiveReloadClients(n int) { r.clients.Store(int32(n)) }

func connectSSE(t *testing.T, url string) (*bufio.Reader, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return bufio.NewReader(resp.Body), func() {
		cancel()
		_ = resp.Body.Close()
	}
}

func readUntil(reader *bufio.Reader, needle string, within time.Duration) bool {
	found := make(chan bool, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				found <- false
				return
			}
			if strings.Contains(line, needle) {
				found <- true
				return
			}
		}
	}()
	select {
	case ok := <-found:
		return ok
	case <-time.After(within):
		return false
	}
}

func TestLiveReload_InitialConnectReceivesSeed(t *testing.T) {
	hub := NewLiveReloadHub(nil, nil)
	defer hub.Shutdown()
	hub.Seed("abc123")

	server := httptest.NewServer(hub)
	defer server.Close()

	reader, done := connectSSE(t, server.URL)
	defer done()

	assert.True(t, readUntil(reader, "abc123", time.Second), "did not find initial hash event")
}

func TestLiveReload_BroadcastSendsEvent(t *testing.T) {
	rec := &reloadRecorder{}
	hub := NewLiveReloadHub(rec, nil)
	defer hub.Shutdown()

	server := httptest.NewServer(hub)
	defer server.Close()

	reader, done := connectSSE(t, server.URL)
	defer done()
	require.True(t, readUntil(reader, ": connected", time.Second))
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	assert.True(t, hub.Broadcast("newhash"))
	assert.True(t, readUntil(reader, "newhash", time.Second))
	assert.Equal(t, int32(1), rec.broadcasts.Load())
	assert.Equal(t, int32(1), rec.clients.Load())
}

func TestLiveReload_DuplicateAndEmptyHashIgnored(t *testing.T) {
	rec := &reloadRecorder{}
	hub := NewLiveReloadHub(rec, nil)
	defer hub.Shutdown()

	assert.True(t, hub.Broadcast("h1"))
	assert.False(t, hub.Broadcast("h1"))
	assert.False(t, hub.Broadcast(""))
	assert.Equal(t, "h1", hub.LastHash())
	assert.Equal(t, int32(1), rec.broadcasts.Load())
}

func TestLiveReload_SeedDoesNotBroadcast(t *testing.T) {
	rec := &reloadRecorder{}
	hub := NewLiveReloadHub(rec, nil)
	defer hub.Shutdown()

	hub.Seed("initial")
	assert.False(t, hub.Broadcast("initial"))
	assert.Equal(t, int32(0), rec.broadcasts.Load())
}

func TestLiveReload_ShutdownRejectsClients(t *testing.T) {
	hub := NewLiveReloadHub(nil, nil)
	hub.Shutdown()
	hub.Shutdown()

	assert.False(t, hub.Broadcast("late"))

	rr := httptest.NewRecorder()
	hub.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/livereload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
