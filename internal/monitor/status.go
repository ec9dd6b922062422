package monitor

import (
	"encoding/json"
	"time"
)

// ProbeResult is the settled outcome of one probe. Exactly one of Payload
// (on success) or Error (on failure) is set.
type ProbeResult struct {
	Connected  bool
	Payload    json.RawMessage
	Error      string
	LatencyMs  *float64
	CheckedAt  time.Time
	StatusCode int
	TLSVersion string
}

// StatusRecord is the live state of one endpoint.
type StatusRecord struct {
	Connected     bool            `json:"connected"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
	Checking      bool            `json:"checking"`
	Expanded      bool            `json:"expanded"`
	ShowRawData   bool            `json:"show_raw_data"`
	LastCheckedAt *time.Time      `json:"last_checked_at"`
	LatencyMs     *float64        `json:"latency_ms"`
	StatusCode    int             `json:"status_code,omitempty"`
	TLSVersion    string          `json:"tls_version,omitempty"`
}

// StatusPatch lists the fields a merge overwrites. Nil fields are left alone.
type StatusPatch struct {
	// Result replaces every settled field at once.
	Result *ProbeResult
	// Checking true registers a probe in flight, false retires one.
	Checking *bool
	Expanded *bool
	// ShowRawData is only meaningful for secured endpoints.
	ShowRawData *bool
}

// Display is the per-endpoint classification shown on the dashboard.
type Display string

const (
	DisplayChecking     Display = "checking"
	DisplaySecured      Display = "secured"
	DisplayUnsecured    Display = "unsecured"
	DisplayDisconnected Display = "disconnected"
)

// Label returns the human readable text for d.
func (d Display) Label() string {
	switch d {
	case DisplayChecking:
		return "Connecting..."
	case DisplaySecured:
		return "Secured"
	case DisplayUnsecured:
		return "Unsecured"
	default:
		return "Not Connected"
	}
}

// Classify derives the display state from static metadata and live status.
func Classify(e Endpoint, r StatusRecord) Display {
	switch {
	case r.Checking:
		return DisplayChecking
	case r.Connected && e.Secured:
		return DisplaySecured
	case r.Connected:
		return DisplayUnsecured
	default:
		return DisplayDisconnected
	}
}

// EndpointStatus joins an endpoint with its current record.
type EndpointStatus struct {
	Endpoint Endpoint     `json:"endpoint"`
	Status   StatusRecord `json:"status"`
	Display  Display      `json:"display"`
	Label    string       `json:"label"`
	Revision uint64       `json:"revision,omitempty"` // set on change notifications only
}

func newEndpointStatus(e Endpoint, r StatusRecord) EndpointStatus {
	d := Classify(e, r)
	return EndpointStatus{Endpoint: e, Status: r, Display: d, Label: d.Label()}
}

func boolPtr(b bool) *bool { return &b }
