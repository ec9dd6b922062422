package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Compile-time interface guard.
var _ Transport = (*TCPTransport)(nil)

// TCPTransport checks that a host:port accepts connections.
type TCPTransport struct {
	dialer net.Dialer
}

// NewTCPTransport creates a TCP transport.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

func (t *TCPTransport) Fetch(ctx context.Context, address string) (Response, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return Response{}, fmt.Errorf("invalid target %q: %w", address, err)
	}

	start := time.Now()
	conn, err := t.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return Response{}, fmt.Errorf("tcp connect %s: %w", address, err)
	}
	latency := time.Since(start)
	remote := conn.RemoteAddr().String()
	conn.Close()

	payload, _ := json.Marshal(map[string]any{
		"address":   address,
		"remote":    remote,
		"connected": true,
	})
	return Response{Payload: payload, Latency: latency}, nil
}
