package monitor

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownEndpoint is returned for ids that are not in the registry.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	// ErrNotSecured is returned for raw data toggles on unsecured endpoints.
	ErrNotSecured = errors.New("endpoint is not secured")
)

type storeEntry struct {
	record   StatusRecord
	inflight int
}

// StatusStore holds one StatusRecord per registry endpoint. All mutation goes
// through Merge, MergeSession and ResetAll.
type StatusStore struct {
	registry *Registry

	mu       sync.Mutex
	entries  map[string]*storeEntry
	session  uint64
	revision uint64
	onChange func(EndpointStatus)
}

// NewStatusStore creates a store with a default record for every endpoint.
func NewStatusStore(reg *Registry) *StatusStore {
	s := &StatusStore{
		registry: reg,
		entries:  make(map[string]*storeEntry, reg.Len()),
	}
	for _, e := range reg.List() {
		s.entries[e.ID] = &storeEntry{}
	}
	return s
}

// OnChange installs the observer called after every applied mutation.
// Observers run outside the store lock, possibly concurrently; the
// Revision of each view orders them.
func (s *StatusStore) OnChange(fn func(EndpointStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Get returns the record for id.
func (s *StatusStore) Get(id string) (StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return StatusRecord{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, id)
	}
	return e.record, nil
}

// Merge applies patch to the record for id unconditionally. Of two merges to
// the same id, the one that completes last wins.
func (s *StatusStore) Merge(id string, patch StatusPatch) error {
	_, err := s.merge(nil, id, patch)
	return err
}

// MergeSession applies patch only if session is still current. It reports
// whether the patch was applied.
func (s *StatusStore) MergeSession(session uint64, id string, patch StatusPatch) (bool, error) {
	return s.merge(&session, id, patch)
}

func (s *StatusStore) merge(session *uint64, id string, patch StatusPatch) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrUnknownEndpoint, id)
	}
	if session != nil && *session != s.session {
		s.mu.Unlock()
		return false, nil
	}
	apply(e, patch)
	view := s.view(id, e)
	observer := s.onChange
	s.mu.Unlock()

	if observer != nil {
		observer(view)
	}
	return true, nil
}

func apply(e *storeEntry, patch StatusPatch) {
	if r := patch.Result; r != nil {
		checked := r.CheckedAt
		e.record.Connected = r.Connected
		e.record.LastCheckedAt = &checked
		e.record.LatencyMs = r.LatencyMs
		e.record.StatusCode = r.StatusCode
		if r.Connected {
			e.record.Payload = r.Payload
			e.record.Error = ""
			e.record.TLSVersion = r.TLSVersion
		} else {
			e.record.Payload = nil
			e.record.Error = r.Error
			e.record.TLSVersion = ""
		}
	}
	if patch.Checking != nil {
		if *patch.Checking {
			e.inflight++
		} else if e.inflight > 0 {
			e.inflight--
		}
		e.record.Checking = e.inflight > 0
	}
	if patch.Expanded != nil {
		e.record.Expanded = *patch.Expanded
	}
	if patch.ShowRawData != nil {
		e.record.ShowRawData = *patch.ShowRawData
	}
}

// ResetAll returns every record to its default and starts a new session.
// Results tagged with an older session are discarded by MergeSession.
func (s *StatusStore) ResetAll() uint64 {
	s.mu.Lock()
	s.session++
	session := s.session
	views := make([]EndpointStatus, 0, len(s.entries))
	for _, ep := range s.registry.List() {
		e := s.entries[ep.ID]
		*e = storeEntry{}
		views = append(views, s.view(ep.ID, e))
	}
	observer := s.onChange
	s.mu.Unlock()

	if observer != nil {
		for _, v := range views {
			observer(v)
		}
	}
	return session
}

// Session returns the current session counter.
func (s *StatusStore) Session() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Snapshot returns a consistent copy of every record keyed by endpoint id.
func (s *StatusStore) Snapshot() map[string]StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]StatusRecord, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.record
	}
	return out
}

// Records returns a consistent snapshot in registry order.
func (s *StatusStore) Records() []EndpointStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EndpointStatus, 0, len(s.entries))
	for _, ep := range s.registry.List() {
		out = append(out, newEndpointStatus(ep, s.entries[ep.ID].record))
	}
	return out
}

// view stamps a new revision and must be called with s.mu held.
func (s *StatusStore) view(id string, e *storeEntry) EndpointStatus {
	s.revision++
	ep, _ := s.registry.Get(id)
	v := newEndpointStatus(ep, e.record)
	v.Revision = s.revision
	return v
}
