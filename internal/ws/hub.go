// Package ws streams engine events to browser clients over WebSocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randomizedcoder/streamwatch/internal/events"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the connection
	// as dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// InitialFunc returns the events sent to a client right after it connects,
// typically one update per known stream.
type InitialFunc func(ctx context.Context) []events.Event

// Hub relays bus events to every connected WebSocket client. A client whose
// buffer is full is disconnected; the engine is never slowed down by it.
type Hub struct {
	bus     *events.Bus
	buf     int
	initial InitialFunc
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a hub fed by bus through a subscription of buf events
// (events.DefaultBufferSize*4 if buf <= 0). initial may be nil.
func New(bus *events.Bus, buf int, initial InitialFunc, logger *slog.Logger) *Hub {
	if buf <= 0 {
		buf = events.DefaultBufferSize * 4
	}
	return &Hub{
		bus:     bus,
		buf:     buf,
		initial: initial,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Run forwards bus events to clients until ctx is cancelled, then closes all
// connections.
func (h *Hub) Run(ctx context.Context) {
	sub := h.bus.Subscribe(h.buf)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e, ok := <-sub.C():
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(e)
		}
	}
}

// ServeHTTP upgrades the connection and serves the client until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	if h.initial != nil {
		for _, e := range h.initial(r.Context()) {
			data, err := e.Encode()
			if err != nil {
				continue
			}
			h.trySend(c, data)
		}
	}

	go c.writePump()
	c.readPump()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// trySend queues data for c and reports whether it fit.
func (h *Hub) trySend(c *client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) broadcast(e events.Event) {
	data, err := e.Encode()
	if err != nil {
		h.logger.Warn("ws_encode_failed", "kind", e.Kind, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !h.trySend(c, data) {
			h.logger.Debug("ws_client_dropped", "remote", c.conn.RemoteAddr().String())
			h.unregister(c)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// writePump drains the send channel to the connection and sends pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and detects disconnects.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
