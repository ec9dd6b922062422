package monitor

import (
	"errors"
	"testing"
)

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name      string
		endpoints []Endpoint
		wantErr   bool
	}{
		{"defaults are valid", DefaultEndpoints(), false},
		{"empty list", nil, true},
		{"missing id", []Endpoint{{Address: "http://a/"}}, true},
		{"missing address", []Endpoint{{ID: "1"}}, true},
		{"duplicate id", []Endpoint{{ID: "1", Address: "http://a/"}, {ID: "1", Address: "http://b/"}}, true},
		{"relative url", []Endpoint{{ID: "1", Address: "/api/users"}}, true},
		{"ftp url", []Endpoint{{ID: "1", Address: "ftp://a/"}}, true},
		{"tcp host:port", []Endpoint{{ID: "1", Address: "db.internal:5432", CheckType: CheckTCP}}, false},
		{"tcp without port", []Endpoint{{ID: "1", Address: "db.internal", CheckType: CheckTCP}}, true},
		{"icmp host", []Endpoint{{ID: "1", Address: "10.0.0.1", CheckType: "ICMP"}}, false},
		{"unknown check type", []Endpoint{{ID: "1", Address: "http://a/", CheckType: "grpc"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.endpoints)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRegistry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEndpoint) {
				t.Errorf("error %v does not wrap ErrInvalidEndpoint", err)
			}
		})
	}
}

func TestRegistry_OrderAndDefaults(t *testing.T) {
	reg, err := NewRegistry([]Endpoint{
		{ID: "b", Address: "http://b/"},
		{ID: "a", Name: "Alpha", Address: "http://a/", Secured: true},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	list := reg.List()
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("List() = %+v, want configuration order", list)
	}
	if list[0].Name != "b" {
		t.Errorf("empty name should fall back to id, got %q", list[0].Name)
	}
	if list[0].CheckType != CheckHTTP {
		t.Errorf("empty check type should default to http, got %q", list[0].CheckType)
	}

	list[0].ID = "mutated"
	if e, ok := reg.Get("b"); !ok || e.ID != "b" {
		t.Error("List() must return a copy")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("Get(missing) = ok")
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}
