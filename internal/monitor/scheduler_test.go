package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeRefresher struct {
	mu    sync.Mutex
	state State
	calls int
}

func (f *fakeRefresher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeRefresher) RefreshAll(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func (f *fakeRefresher) set(s State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestScheduler_RefreshesOnlyWhileProbing(t *testing.T) {
	target := &fakeRefresher{state: StateIdle}
	s := NewScheduler(target, 5*time.Millisecond, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	if n := target.count(); n != 0 {
		t.Fatalf("refreshed %d times while idle", n)
	}

	target.set(StateProbing)
	waitFor(t, "periodic refresh", func() bool { return target.count() >= 2 })
}

func TestScheduler_Disabled(t *testing.T) {
	s := NewScheduler(&fakeRefresher{state: StateProbing}, 0, nil)
	s.Start(context.Background())
	if s.Running() {
		t.Error("scheduler with zero interval is running")
	}
	s.Stop()
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := NewScheduler(&fakeRefresher{}, time.Hour, zap.NewNop())
	s.Start(context.Background())
	s.Start(context.Background())
	if !s.Running() {
		t.Fatal("Running() = false after Start")
	}
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
}

func TestScheduler_StopsWithContext(t *testing.T) {
	target := &fakeRefresher{state: StateProbing}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(target, 5*time.Millisecond, zap.NewNop())
	s.Start(ctx)
	waitFor(t, "first refresh", func() bool { return target.count() >= 1 })

	cancel()
	s.Stop()
	n := target.count()
	time.Sleep(20 * time.Millisecond)
	if target.count() != n {
		t.Error("refreshes continued after the context was cancelled")
	}
}
