package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/evdnx/golog"
	"github.com/evdnx/tradingcp/internal/logutil"
	"github.com/gorilla/websocket"
)

const (
	hubComponent = "stream_hub"
	writeTimeout = 5 * time.Second
	// sendBuffer is how many messages a client may fall behind before it is dropped
	sendBuffer = 8
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans JSON messages out to every connected websocket client. Each client
// has its own writer goroutine, so a slow client never holds up Broadcast.
type Hub struct {
	clients  map[*client]struct{}
	mu       sync.Mutex
	upgrader websocket.Upgrader
	logger   *golog.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logutil.Default(),
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues message for every client without waiting on the network.
// Clients whose queue is full are dropped.
func (h *Hub) Broadcast(message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to encode broadcast",
			golog.String("component", hubComponent),
			golog.String("error", err.Error()),
		)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("WebSocket client too slow, dropping",
				golog.String("component", hubComponent),
			)
			h.remove(c)
		}
	}
}

// remove unregisters c and closes its queue. Callers hold h.mu.
func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// writeLoop drains c.send onto the connection and closes it when the queue is
// closed or a write fails.
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn("WebSocket write failed, dropping client",
				golog.String("component", hubComponent),
				golog.String("remote", c.conn.RemoteAddr().String()),
				golog.String("error", err.Error()),
			)
			h.mu.Lock()
			h.remove(c)
			h.mu.Unlock()
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

// ServeHTTP upgrades the request and keeps the client registered until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			golog.String("component", hubComponent),
			golog.String("error", err.Error()),
		)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("WebSocket client connected",
		golog.String("component", hubComponent),
		golog.Int("clients", count),
	)

	go h.writeLoop(c)
	defer func() {
		h.mu.Lock()
		h.remove(c)
		h.mu.Unlock()
	}()

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.remove(c)
	}
}
