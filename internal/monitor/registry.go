package monitor

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CheckType selects the probe transport for an endpoint.
type CheckType string

const (
	CheckHTTP CheckType = "http"
	CheckTCP  CheckType = "tcp"
	CheckICMP CheckType = "icmp"
)

// Endpoint is a monitored target. Endpoints are fixed at startup.
type Endpoint struct {
	ID        string    `json:"id" mapstructure:"id"`
	Name      string    `json:"name" mapstructure:"name"`
	Address   string    `json:"address" mapstructure:"address"`
	Secured   bool      `json:"secured" mapstructure:"secured"`
	CheckType CheckType `json:"check_type" mapstructure:"check_type"`
}

// ErrInvalidEndpoint is wrapped by every endpoint validation failure.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Registry is the ordered, immutable set of monitored endpoints.
type Registry struct {
	endpoints []Endpoint
	index     map[string]int
}

// NewRegistry validates endpoints and fills defaults: an empty check type
// means http and an empty name falls back to the id.
func NewRegistry(endpoints []Endpoint) (*Registry, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: at least one endpoint is required", ErrInvalidEndpoint)
	}
	r := &Registry{
		endpoints: make([]Endpoint, 0, len(endpoints)),
		index:     make(map[string]int, len(endpoints)),
	}
	for i, e := range endpoints {
		e.ID = strings.TrimSpace(e.ID)
		e.Address = strings.TrimSpace(e.Address)
		e.CheckType = e.CheckType.normalize()
		if e.Name == "" {
			e.Name = e.ID
		}
		if err := validateEndpoint(e); err != nil {
			return nil, fmt.Errorf("endpoint #%d: %w", i+1, err)
		}
		if _, dup := r.index[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidEndpoint, e.ID)
		}
		r.index[e.ID] = len(r.endpoints)
		r.endpoints = append(r.endpoints, e)
	}
	return r, nil
}

// normalize lowercases t; an empty check type means http.
func (t CheckType) normalize() CheckType {
	if t == "" {
		return CheckHTTP
	}
	return CheckType(strings.ToLower(string(t)))
}

func validateEndpoint(e Endpoint) error {
	if e.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEndpoint)
	}
	if e.Address == "" {
		return fmt.Errorf("%w: %q has no address", ErrInvalidEndpoint, e.ID)
	}
	switch e.CheckType {
	case CheckHTTP:
		u, err := url.Parse(e.Address)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q address %q is not an absolute http(s) URL", ErrInvalidEndpoint, e.ID, e.Address)
		}
	case CheckTCP:
		if _, port, err := net.SplitHostPort(e.Address); err != nil || port == "" {
			return fmt.Errorf("%w: %q address %q is not host:port", ErrInvalidEndpoint, e.ID, e.Address)
		}
	case CheckICMP:
	default:
		return fmt.Errorf("%w: %q has unknown check type %q", ErrInvalidEndpoint, e.ID, e.CheckType)
	}
	return nil
}

// List returns the endpoints in configuration order.
func (r *Registry) List() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Get returns the endpoint with the given id.
func (r *Registry) Get(id string) (Endpoint, bool) {
	i, ok := r.index[id]
	if !ok {
		return Endpoint{}, false
	}
	return r.endpoints[i], true
}

// Len returns the number of endpoints.
func (r *Registry) Len() int { return len(r.endpoints) }
