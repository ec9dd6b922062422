// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/HerbHall/tunnelwatch/internal/store"
	"github.com/HerbHall/tunnelwatch/pkg/plugin"
)

// NewStore opens an in-memory SQLite store that is closed with the test.
func NewStore(t testing.TB) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// EventRecorder keeps every event published on a bus, in order.
type EventRecorder struct {
	mu     sync.Mutex
	events []plugin.Event
}

// RecordEvents subscribes a recorder to all topics of bus until the test ends.
func RecordEvents(t testing.TB, bus plugin.EventBus) *EventRecorder {
	t.Helper()
	r := &EventRecorder{}
	unsubscribe := bus.SubscribeAll(func(_ context.Context, e plugin.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	t.Cleanup(unsubscribe)
	return r
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []plugin.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]plugin.Event(nil), r.events...)
}

// Topics returns the topics of the recorded events in publish order.
func (r *EventRecorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Topic
	}
	return out
}

// Count returns how many events were published on topic.
func (r *EventRecorder) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Topic == topic {
			n++
		}
	}
	return n
}
