package ws

import (
	"time"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageSnapshot           MessageType = "status.snapshot"
	MessageEndpointUpdated    MessageType = "endpoint.updated"
	MessageSessionChanged     MessageType = "session.changed"
	MessageStatsUpdated       MessageType = "stats.updated"
	MessageTunnelConnected    MessageType = "tunnel.connected"
	MessageTunnelDisconnected MessageType = "tunnel.disconnected"
	MessageTunnelFailed       MessageType = "tunnel.failed"
)

// Message is the envelope for all WebSocket messages. Data holds a
// monitor.EndpointStatus, monitor.Session, monitor.Stats, tunnel.Entry or,
// for the snapshot, whatever the handler's snapshot function returns.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}
