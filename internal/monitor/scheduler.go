package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// refresher is the part of Controller the scheduler drives.
type refresher interface {
	State() State
	RefreshAll(ctx context.Context)
}

// Scheduler re-probes every endpoint on a fixed interval while the
// controller is probing.
type Scheduler struct {
	target   refresher
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. A non-positive interval disables it.
func NewScheduler(target refresher, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{target: target, interval: interval, logger: logger}
}

// Start launches the ticker loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("periodic refresh disabled")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.target.State() != StateProbing {
		return
	}
	s.logger.Debug("periodic refresh")
	s.target.RefreshAll(ctx)
}
