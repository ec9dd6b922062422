// Package tunnel drives the external connector that must be up before any
// endpoint is probed, and journals every connect and disconnect attempt.
package tunnel

//go:generate mockgen -destination=mock_connector.go -package=tunnel github.com/HerbHall/tunnelwatch/internal/tunnel Connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action names a connector operation.
type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
)

// Backend names accepted by plugins.tunnel.backend.
const (
	BackendNone    = "none"
	BackendCommand = "command"
	BackendHTTP    = "http"
)

var (
	// ErrUnknownBackend is returned by NewConnector for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown tunnel backend")
	// ErrCommandFailed wraps a non-zero exit of the connector command.
	ErrCommandFailed = errors.New("connector command failed")
	// ErrBridgeRejected wraps a non-2xx answer from the connector bridge.
	ErrBridgeRejected = errors.New("connector bridge rejected request")
)

// Connector establishes and tears down the secure tunnel.
type Connector interface {
	Connect(ctx context.Context) (Outcome, error)
	Disconnect(ctx context.Context) (Outcome, error)
}

// Outcome is what a backend reported for a successful call.
type Outcome struct {
	Output string `json:"output,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Error is returned by every backend when an attempt fails.
type Error struct {
	Action Action
	Err    error
	Detail string // stderr or the bridge's error message
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("tunnel %s: %v: %s", e.Action, e.Err, e.Detail)
	}
	return fmt.Sprintf("tunnel %s: %v", e.Action, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause returns the most specific description of the failure, suitable for
// showing to an operator.
func (e *Error) Cause() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Cause extracts an operator-facing description from any connector error.
func Cause(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Cause()
	}
	return err.Error()
}

// NewConnector builds the backend selected in cfg.
func NewConnector(cfg Config) (Connector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendNone:
		return NoopConnector{}, nil
	case BackendCommand:
		fields := strings.Fields(cfg.Command)
		if len(fields) == 0 {
			return nil, fmt.Errorf("tunnel backend %q: command is required", BackendCommand)
		}
		return NewCommandConnector(fields[0], fields[1:], cfg.Timeout), nil
	case BackendHTTP:
		return NewBridgeConnector(cfg.BridgeURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
