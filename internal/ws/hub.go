package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 256
	writeTimeout = 5 * time.Second
)

// Client is one dashboard connected to the status stream.
type Client struct {
	conn   *websocket.Conn
	id     string
	send   chan Message
	logger *zap.Logger

	lagged atomic.Bool
}

// Hub fans status messages out to every connected client.
//
// A client that cannot keep up is evicted rather than skipped: a dashboard
// that silently missed an endpoint update would show stale state until the
// next change. The evicted client reconnects and starts over from a fresh
// snapshot.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds c. When greeting is non-nil its message is queued ahead of
// any broadcast, so a snapshot never arrives after a newer update.
func (h *Hub) Register(c *Client, greeting func() Message) {
	h.mu.Lock()
	if greeting != nil {
		c.send <- greeting()
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", zap.String("client_id", c.id), zap.Int("clients", n))
}

// Unregister removes c and closes its send channel. Safe to call after an
// eviction.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// Broadcast queues msg for every client and evicts those whose buffer is
// full.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			c.lagged.Store(true)
			h.removeLocked(c)
			h.logger.Warn("evicting lagging websocket client",
				zap.String("client_id", c.id),
				zap.String("type", string(msg.Type)))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Debug("websocket client disconnected", zap.String("client_id", c.id), zap.Bool("lagged", c.lagged.Load()))
}

// writePump drains the send channel onto the socket. When the hub closes
// the channel it closes the socket, which also ends readPump.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				if c.lagged.Load() {
					_ = c.conn.Close(websocket.StatusTryAgainLater, "client too slow, reconnect")
				}
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("websocket write error", zap.String("client_id", c.id), zap.Error(err))
				_ = c.conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// readPump blocks until the peer goes away. Clients never send anything we
// act on.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
