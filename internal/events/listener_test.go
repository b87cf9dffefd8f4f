package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nebula-chat/internal/chat"
)

// recordingHandler collects dispatched events for assertions.
type recordingHandler struct {
	mu       sync.Mutex
	messages []chat.InboundMessage
	statuses []chat.StatusUpdate
}

func (h *recordingHandler) ApplyInbound(ev chat.InboundMessage) {
	h.mu.Lock()
	h.messages = append(h.messages, ev)
	h.mu.Unlock()
}

func (h *recordingHandler) ApplyStatus(ev chat.StatusUpdate) {
	h.mu.Lock()
	h.statuses = append(h.statuses, ev)
	h.mu.Unlock()
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages), len(h.statuses)
}

// feedServer upgrades one connection at a time and writes the given
// frames to it, then blocks until the test finishes.
func feedServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		<-done
	}))
	t.Cleanup(func() { close(done); srv.Close() })
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestListener_DispatchesMessageAndStatusFrames(t *testing.T) {
	srv := feedServer(t, []string{
		`{"type":"message","data":{"id":"wamid.in","from":"555000","text":"hi","timestamp":"1700000000"}}`,
		`{"type":"status","data":{"id":"wamid.out","recipient_id":"555000","status":"read"}}`,
	})

	handler := &recordingHandler{}
	l := NewListener(wsURL(srv), handler)
	l.Start()
	defer l.Close()

	waitFor(t, func() bool {
		m, s := handler.counts()
		return m == 1 && s == 1
	})

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, "wamid.in", handler.messages[0].ID)
	assert.Equal(t, "555000", handler.messages[0].From)
	assert.Equal(t, "read", handler.statuses[0].Status)
}

func TestListener_BadFramesDoNotKillSubscription(t *testing.T) {
	srv := feedServer(t, []string{
		`not json at all`,
		`{"type":"message","data":"not an object"}`,
		`{"type":"presence","data":{}}`,
		`{"type":"message","data":{"id":"wamid.good","from":"555000","text":"survived"}}`,
	})

	handler := &recordingHandler{}
	l := NewListener(wsURL(srv), handler)
	l.Start()
	defer l.Close()

	waitFor(t, func() bool {
		m, _ := handler.counts()
		return m == 1
	})

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.messages, 1)
	assert.Equal(t, "wamid.good", handler.messages[0].ID)
	assert.Empty(t, handler.statuses)
}

func TestListener_ConnectedStateTracksSocket(t *testing.T) {
	srv := feedServer(t, nil)

	l := NewListener(wsURL(srv), &recordingHandler{})
	assert.False(t, l.Connected())
	l.Start()

	waitFor(t, l.Connected)
	assert.Equal(t, Connected, l.State())

	l.Close()
	assert.False(t, l.Connected())
}

func TestListener_CloseReturnsWhileDisconnected(t *testing.T) {
	// No server listening; the listener sits in its reconnect wait.
	l := NewListener("ws://127.0.0.1:1/feed", &recordingHandler{})
	l.Start()
	time.Sleep(50 * time.Millisecond)

	finished := make(chan struct{})
	go func() {
		l.Close()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the reconnect wait")
	}
	assert.Equal(t, Disconnected, l.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
}
