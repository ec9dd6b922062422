package monitor

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestStatusStore_InitialAndResetDefaults(t *testing.T) {
	reg := testRegistry(t)
	s := NewStatusStore(reg)

	res := okResult(`{"users":2}`, 10)
	for _, e := range reg.List() {
		if err := s.Merge(e.ID, StatusPatch{Result: &res, Expanded: boolPtr(true), ShowRawData: boolPtr(true), Checking: boolPtr(true)}); err != nil {
			t.Fatalf("Merge(%s): %v", e.ID, err)
		}
	}

	before := s.Session()
	after := s.ResetAll()
	if after != before+1 || s.Session() != after {
		t.Errorf("ResetAll() session = %d, want %d", after, before+1)
	}

	snap := s.Snapshot()
	if len(snap) != reg.Len() {
		t.Fatalf("Snapshot() has %d records, want %d", len(snap), reg.Len())
	}
	for id, rec := range snap {
		if rec.Connected || rec.Payload != nil || rec.Error != "" || rec.Checking ||
			rec.Expanded || rec.ShowRawData || rec.LastCheckedAt != nil || rec.LatencyMs != nil {
			t.Errorf("record %s not reset: %+v", id, rec)
		}
	}
}

func TestStatusStore_MergeGetRoundTrip(t *testing.T) {
	s := NewStatusStore(testRegistry(t))

	res := okResult(`{"projects":3}`, 55)
	res.StatusCode = 200
	if err := s.Merge("sec", StatusPatch{Result: &res}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	rec, err := s.Get("sec")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Connected || string(rec.Payload) != `{"projects":3}` || rec.Error != "" {
		t.Errorf("Get() = %+v", rec)
	}
	if rec.LastCheckedAt == nil || !rec.LastCheckedAt.Equal(res.CheckedAt) {
		t.Errorf("LastCheckedAt = %v, want %v", rec.LastCheckedAt, res.CheckedAt)
	}
	if rec.LatencyMs == nil || *rec.LatencyMs != 55 || rec.StatusCode != 200 {
		t.Errorf("latency/status not merged: %+v", rec)
	}

	fail := failResult("connection refused")
	_ = s.Merge("sec", StatusPatch{Result: &fail})
	rec, _ = s.Get("sec")
	if rec.Connected || rec.Payload != nil || rec.Error != "connection refused" {
		t.Errorf("failure must clear payload and set error: %+v", rec)
	}
}

func TestStatusStore_UnknownEndpoint(t *testing.T) {
	s := NewStatusStore(testRegistry(t))
	if _, err := s.Get("nope"); !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("Get() error = %v, want ErrUnknownEndpoint", err)
	}
	if err := s.Merge("nope", StatusPatch{Expanded: boolPtr(true)}); !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("Merge() error = %v, want ErrUnknownEndpoint", err)
	}
	if _, err := s.MergeSession(0, "nope", StatusPatch{}); !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("MergeSession() error = %v, want ErrUnknownEndpoint", err)
	}
}

func TestStatusStore_NoLostUpdateAcrossKeys(t *testing.T) {
	eps := make([]Endpoint, 50)
	for i := range eps {
		eps[i] = Endpoint{ID: fmt.Sprintf("e%d", i), Address: fmt.Sprintf("http://10.0.0.%d/", i)}
	}
	reg, err := NewRegistry(eps)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	s := NewStatusStore(reg)

	var wg sync.WaitGroup
	for _, e := range eps {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res := okResult(fmt.Sprintf(`{"id":%q}`, id), 1)
			_ = s.Merge(id, StatusPatch{Result: &res})
			_ = s.Merge(id, StatusPatch{Expanded: boolPtr(true)})
		}(e.ID)
	}
	wg.Wait()

	for id, rec := range s.Snapshot() {
		if !rec.Connected || !rec.Expanded || string(rec.Payload) != fmt.Sprintf(`{"id":%q}`, id) {
			t.Errorf("lost update on %s: %+v", id, rec)
		}
	}
}

func TestStatusStore_CheckingKeepsSettledValues(t *testing.T) {
	s := NewStatusStore(testRegistry(t))
	res := okResult(`{"a":1}`, 12)
	_ = s.Merge("open", StatusPatch{Result: &res})
	_ = s.Merge("open", StatusPatch{Checking: boolPtr(true)})

	rec, _ := s.Get("open")
	if !rec.Checking || !rec.Connected || string(rec.Payload) != `{"a":1}` || rec.LatencyMs == nil {
		t.Errorf("checking must not blank settled values: %+v", rec)
	}
}

func TestStatusStore_OverlappingChecks(t *testing.T) {
	s := NewStatusStore(testRegistry(t))

	_ = s.Merge("sec", StatusPatch{Checking: boolPtr(true)})
	_ = s.Merge("sec", StatusPatch{Checking: boolPtr(true)})

	first := okResult(`{}`, 1)
	_ = s.Merge("sec", StatusPatch{Result: &first, Checking: boolPtr(false)})
	if rec, _ := s.Get("sec"); !rec.Checking {
		t.Error("checking cleared while a second probe is still in flight")
	}

	second := okResult(`{}`, 2)
	_ = s.Merge("sec", StatusPatch{Result: &second, Checking: boolPtr(false)})
	if rec, _ := s.Get("sec"); rec.Checking {
		t.Error("checking still set after every probe settled")
	}

	// An unmatched retire must not drive the count negative.
	_ = s.Merge("sec", StatusPatch{Checking: boolPtr(false)})
	_ = s.Merge("sec", StatusPatch{Checking: boolPtr(true)})
	if rec, _ := s.Get("sec"); !rec.Checking {
		t.Error("checking not set after a fresh probe started")
	}
}

func TestStatusStore_MergeSessionVersusMerge(t *testing.T) {
	s := NewStatusStore(testRegistry(t))
	old := s.Session()
	s.ResetAll()

	late := okResult(`{"late":true}`, 9)
	applied, err := s.MergeSession(old, "sec", StatusPatch{Result: &late})
	if err != nil || applied {
		t.Fatalf("MergeSession(superseded) = %v, %v; want false, nil", applied, err)
	}
	if rec, _ := s.Get("sec"); rec.Connected {
		t.Error("superseded result was applied")
	}

	// Plain Merge is last-write-wins regardless of session.
	if err := s.Merge("sec", StatusPatch{Result: &late}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if rec, _ := s.Get("sec"); !rec.Connected {
		t.Error("plain Merge must apply after a reset")
	}

	applied, _ = s.MergeSession(s.Session(), "open", StatusPatch{Result: &late})
	if !applied {
		t.Error("MergeSession(current) was not applied")
	}
}

func TestStatusStore_OnChange(t *testing.T) {
	s := NewStatusStore(testRegistry(t))

	var mu sync.Mutex
	var seen []EndpointStatus
	s.OnChange(func(v EndpointStatus) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v)
	})

	res := okResult(`{}`, 1)
	_ = s.Merge("sec", StatusPatch{Result: &res})
	_, _ = s.MergeSession(s.Session()+1, "sec", StatusPatch{Result: &res}) // discarded, no notification
	s.ResetAll()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("observer calls = %d, want 3 (one merge + reset of two endpoints)", len(seen))
	}
	if seen[0].Display != DisplaySecured || seen[0].Label != "Secured" {
		t.Errorf("first view = %+v", seen[0])
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].Revision <= seen[i-1].Revision {
			t.Errorf("revisions not increasing: %d then %d", seen[i-1].Revision, seen[i].Revision)
		}
	}
}

func TestStatusStore_RecordsInRegistryOrder(t *testing.T) {
	s := NewStatusStore(testRegistry(t))
	recs := s.Records()
	if len(recs) != 2 || recs[0].Endpoint.ID != "sec" || recs[1].Endpoint.ID != "open" {
		t.Errorf("Records() order = %+v", recs)
	}
	if recs[0].Display != DisplayDisconnected || recs[0].Label != "Not Connected" {
		t.Errorf("default display = %s/%s", recs[0].Display, recs[0].Label)
	}
}
