package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedCheck is returned by Probe for a check type with no transport.
var ErrUnsupportedCheck = errors.New("unsupported check type")

// Transport performs the network exchange for one check type. A returned
// error means the endpoint is unreachable or unhealthy; Response may still
// carry the latency and status code observed before the failure.
type Transport interface {
	Fetch(ctx context.Context, address string) (Response, error)
}

// Response is what a transport observed.
type Response struct {
	Payload    json.RawMessage
	StatusCode int
	TLSVersion string
	// Latency is zero when no answer was received.
	Latency time.Duration
}

// Prober turns transport exchanges into settled ProbeResults. It never
// touches the status store.
type Prober struct {
	transports map[CheckType]Transport
	timeout    time.Duration
	now        func() time.Time
}

// NewProber creates a prober that bounds each probe by timeout.
func NewProber(timeout time.Duration, transports map[CheckType]Transport) *Prober {
	return &Prober{
		transports: transports,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Probe checks e once. The error return is reserved for misuse (an endpoint
// the prober cannot handle); reachability failures are reported in the
// result.
func (p *Prober) Probe(ctx context.Context, e Endpoint) (ProbeResult, error) {
	e.CheckType = e.CheckType.normalize()
	t, ok := p.transports[e.CheckType]
	if !ok {
		return ProbeResult{}, fmt.Errorf("%w: %q for endpoint %q", ErrUnsupportedCheck, e.CheckType, e.ID)
	}
	if err := validateEndpoint(e); err != nil {
		return ProbeResult{}, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := t.Fetch(ctx, e.Address)
	result := ProbeResult{
		CheckedAt:  p.now().UTC(),
		StatusCode: resp.StatusCode,
	}
	if resp.Latency > 0 {
		ms := float64(resp.Latency) / float64(time.Millisecond)
		result.LatencyMs = &ms
		probeDuration.WithLabelValues(e.ID).Observe(resp.Latency.Seconds())
	}

	if err != nil {
		result.Error = describeFailure(ctx, err)
		probesTotal.WithLabelValues(e.ID, "failure").Inc()
		return result, nil
	}

	result.Connected = true
	result.Payload = resp.Payload
	if result.Payload == nil {
		result.Payload = json.RawMessage(`{}`)
	}
	result.TLSVersion = resp.TLSVersion
	probesTotal.WithLabelValues(e.ID, "success").Inc()
	return result, nil
}

func describeFailure(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	default:
		return err.Error()
	}
}
