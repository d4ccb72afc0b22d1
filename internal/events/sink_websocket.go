package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsClientBuffer = 64
	wsWriteTimeout = 10 * time.Second
)

// Hub is a sink that broadcasts structured events to connected WebSocket
// clients. It is also the http.Handler those clients connect to. Clients that
// fall behind lose events rather than slowing the emitter.
type Hub struct {
	name string

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closing chan struct{}
	once    sync.Once
}

type wsClient struct {
	send chan []byte
}

// NewHub returns an empty hub.
func NewHub(name string) *Hub {
	return &Hub{
		name:    name,
		clients: make(map[*wsClient]struct{}),
		closing: make(chan struct{}),
	}
}

func (h *Hub) Name() string { return h.name }

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and streams events until the client
// leaves or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("usage stream: websocket accept failed")
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx := conn.CloseRead(r.Context())
	c := &wsClient{send: make(chan []byte, wsClientBuffer)}
	if !h.add(c) {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.remove(c)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			_ = conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.closing:
		return false
	default:
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Publish queues the event for every client without waiting on any of them.
func (h *Hub) Publish(_ context.Context, ev CloudEvent) error {
	data, err := ev.Structured()
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Debug().Str("event_id", ev.ID).Msg("usage stream: slow client, event skipped")
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.once.Do(func() { close(h.closing) })
	return nil
}
