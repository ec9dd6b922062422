package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func testEndpoints() []Endpoint {
	return []Endpoint{
		{ID: "sec", Name: "Projects API", Address: "http://10.0.0.1:3005/api/projects", Secured: true},
		{ID: "open", Name: "Users API", Address: "http://10.0.0.2:443/api/users"},
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(testEndpoints())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func latency(ms float64) *float64 { return &ms }

func okResult(payload string, ms float64) ProbeResult {
	return ProbeResult{
		Connected: true,
		Payload:   json.RawMessage(payload),
		LatencyMs: latency(ms),
		CheckedAt: time.Now().UTC(),
	}
}

func failResult(msg string) ProbeResult {
	return ProbeResult{Error: msg, CheckedAt: time.Now().UTC()}
}

// fakeProber returns canned results. Endpoints with a gate block until the
// gate is closed and ignore context cancellation, which models a response
// that arrives late.
type fakeProber struct {
	mu      sync.Mutex
	results map[string]ProbeResult
	gates   map[string]chan struct{}
	calls   map[string]int
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		results: make(map[string]ProbeResult),
		gates:   make(map[string]chan struct{}),
		calls:   make(map[string]int),
	}
}

func (f *fakeProber) set(id string, r ProbeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = r
}

func (f *fakeProber) gate(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *fakeProber) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeProber) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeProber) Probe(_ context.Context, e Endpoint) (ProbeResult, error) {
	f.mu.Lock()
	f.calls[e.ID]++
	gate := f.gates[e.ID]
	res, ok := f.results[e.ID]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if !ok {
		res = okResult(`{"ok":true}`, 42)
	}
	return res, nil
}
