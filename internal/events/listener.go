package events

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nebula-chat/internal/chat"
)

// reconnectDelay is fixed: the feed is reconnected forever with no
// backoff growth. That is deliberate for a client tool of this kind.
const reconnectDelay = 3 * time.Second

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Handler receives the two recognized event kinds.
type Handler interface {
	ApplyInbound(chat.InboundMessage)
	ApplyStatus(chat.StatusUpdate)
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Listener maintains exactly one live subscription to the upstream
// event feed. A supervising goroutine owns the connection and the
// reconnect timer; Close tears both down deterministically.
type Listener struct {
	url     string
	dialer  *websocket.Dialer
	handler Handler

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	done      chan struct{}
	closeOnce sync.Once
	stopped   chan struct{}
}

func NewListener(url string, handler Handler) *Listener {
	return &Listener{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		handler: handler,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the supervising goroutine.
func (l *Listener) Start() {
	go l.run()
}

// Close cancels any pending reconnect and closes the active socket.
// It blocks until the supervisor has exited.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		if l.conn != nil {
			l.conn.Close()
		}
		l.mu.Unlock()
	})
	<-l.stopped
}

// Connected is a coarse display-only signal; sends never consult it.
func (l *Listener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == Connected
}

func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Listener) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.done:
			l.setState(Disconnected)
			return
		default:
		}

		l.setState(Connecting)
		conn, _, err := l.dialer.Dial(l.url, nil)
		if err != nil {
			log.Printf("events: connect to %s failed: %v", l.url, err)
			l.setState(Disconnected)
			if !l.waitReconnect() {
				return
			}
			continue
		}

		l.mu.Lock()
		l.conn = conn
		l.state = Connected
		l.mu.Unlock()
		log.Printf("events: connected to %s", l.url)

		l.readLoop(conn)

		l.mu.Lock()
		l.conn = nil
		l.state = Disconnected
		l.mu.Unlock()

		select {
		case <-l.done:
			return
		default:
		}
		log.Printf("events: feed disconnected, reconnecting in %s", reconnectDelay)
		if !l.waitReconnect() {
			return
		}
	}
}

// waitReconnect sleeps for the reconnect delay unless Close fires
// first. Returns false when the listener is shutting down.
func (l *Listener) waitReconnect() bool {
	timer := time.NewTimer(reconnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-l.done:
		return false
	}
}

// readLoop decodes frames until the connection drops. A bad frame is
// logged and dropped; it never terminates the subscription.
func (l *Listener) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		l.dispatch(payload)
	}
}

func (l *Listener) dispatch(payload []byte) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		log.Printf("events: dropping malformed frame: %v", err)
		return
	}

	switch f.Type {
	case "message":
		var ev chat.InboundMessage
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			log.Printf("events: dropping malformed message event: %v", err)
			return
		}
		l.handler.ApplyInbound(ev)
	case "status":
		var ev chat.StatusUpdate
		if err := json.Unmarshal(f.Data, &ev); err != nil {
			log.Printf("events: dropping malformed status event: %v", err)
			return
		}
		l.handler.ApplyStatus(ev)
	default:
		// Unknown event kinds are ignored.
	}
}
