package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var _ Connector = (*BridgeConnector)(nil)

const maxBridgeBody = 64 << 10

// BridgeConnector asks a helper service to run the connector on its behalf:
// GET <url>?action=connect|disconnect.
type BridgeConnector struct {
	base   *url.URL
	client *http.Client
}

// bridgeReply covers both reply shapes seen from bridges: message/error and
// the raw stdout/stderr of the command.
type bridgeReply struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// NewBridgeConnector validates rawURL and returns a connector using it.
func NewBridgeConnector(rawURL string, timeout time.Duration) (*BridgeConnector, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse bridge url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("bridge url %q must be an absolute http(s) URL", rawURL)
	}
	return &BridgeConnector{
		base:   u,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (b *BridgeConnector) Connect(ctx context.Context) (Outcome, error) {
	return b.call(ctx, ActionConnect)
}

func (b *BridgeConnector) Disconnect(ctx context.Context) (Outcome, error) {
	return b.call(ctx, ActionDisconnect)
}

func (b *BridgeConnector) call(ctx context.Context, action Action) (Outcome, error) {
	u := *b.base
	q := u.Query()
	q.Set("action", string(action))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return Outcome{}, &Error{Action: action, Err: err}
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return Outcome{}, &Error{Action: action, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBridgeBody))
	if err != nil {
		return Outcome{}, &Error{Action: action, Err: fmt.Errorf("read bridge reply: %w", err)}
	}

	var reply bridgeReply
	if jsonErr := json.Unmarshal(body, &reply); jsonErr != nil {
		reply.Error = strings.TrimSpace(string(body))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := reply.Error
		if reply.Stderr != "" {
			detail = strings.TrimSpace(reply.Stderr)
		}
		return Outcome{}, &Error{
			Action: action,
			Err:    fmt.Errorf("%w: HTTP %d", ErrBridgeRejected, resp.StatusCode),
			Detail: detail,
		}
	}

	out := Outcome{Output: strings.TrimSpace(reply.Stdout), Detail: reply.Message}
	if out.Detail == "" {
		out.Detail = strings.TrimSpace(reply.Stderr)
	}
	return out, nil
}
