package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/HerbHall/tunnelwatch/internal/monitor"
	"github.com/HerbHall/tunnelwatch/internal/tunnel"
	"github.com/HerbHall/tunnelwatch/pkg/plugin"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configure a Handler.
type Options struct {
	// OriginPatterns lists extra hosts allowed to open the stream. Same
	// origin is always allowed.
	OriginPatterns []string
	// Snapshot, when set, produces the first message every client gets.
	Snapshot func() any
}

// Handler streams monitor and tunnel events to dashboard clients.
type Handler struct {
	hub    *Hub
	bus    plugin.Subscriber
	opts   Options
	logger *zap.Logger
	unsubs []func()
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes to the event bus.
func NewHandler(bus plugin.Subscriber, opts Options, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		bus:    bus,
		opts:   opts,
		logger: logger,
	}
	h.subscribeToEvents()
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/status", h.handleStatusStream)
}

// Hub exposes the client hub.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// Close drops the bus subscriptions.
func (h *Handler) Close() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	h.unsubs = nil
}

func (h *Handler) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	// The stream is long-lived; drop the server's per-request deadlines.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		id:     uuid.NewString(),
		send:   make(chan Message, sendBuffer),
		logger: h.logger,
	}
	var greeting func() Message
	if h.opts.Snapshot != nil {
		greeting = func() Message {
			return Message{Type: MessageSnapshot, Timestamp: time.Now().UTC(), Data: h.opts.Snapshot()}
		}
	}
	h.hub.Register(client, greeting)

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)

	h.hub.Unregister(client)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

var topicTypes = map[string]MessageType{
	monitor.TopicEndpointUpdated: MessageEndpointUpdated,
	monitor.TopicSessionChanged:  MessageSessionChanged,
	monitor.TopicStatsUpdated:    MessageStatsUpdated,
	tunnel.TopicConnected:        MessageTunnelConnected,
	tunnel.TopicDisconnected:     MessageTunnelDisconnected,
	tunnel.TopicFailed:           MessageTunnelFailed,
}

// subscribeToEvents forwards monitor and tunnel events to every client.
func (h *Handler) subscribeToEvents() {
	if h.bus == nil {
		return
	}
	for topic, typ := range topicTypes {
		h.unsubs = append(h.unsubs, h.bus.Subscribe(topic, func(_ context.Context, event plugin.Event) {
			ts := event.Timestamp
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			h.hub.Broadcast(Message{Type: typ, Timestamp: ts, Data: event.Payload})
		}))
	}
	h.logger.Info("subscribed to monitor and tunnel events for WebSocket broadcasting",
		zap.Int("topics", len(topicTypes)))
}
