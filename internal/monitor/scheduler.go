package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/dozer/internal/clock"
)

// Scheduler runs a function on a fixed interval, never overlapping. A tick
// that arrives while the previous run is still going is dropped, not queued.
type Scheduler struct {
	interval time.Duration
	clock    clock.Clock
	onSkip   func()

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler ticking on clk (nil means the real
// clock). onSkip, if set, is called for every dropped tick.
func NewScheduler(interval time.Duration, clk clock.Clock, onSkip func()) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	return &Scheduler{interval: interval, clock: clk, onSkip: onSkip}
}

// Run calls fn immediately and then on every tick until ctx is done. It
// waits for an in-flight run before returning.
func (s *Scheduler) Run(ctx context.Context, fn func(context.Context)) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.TryRun(ctx, fn)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.TryRun(ctx, fn)
		}
	}
}

// TryRun starts fn in a goroutine unless a run is in flight. It reports
// whether fn was started.
func (s *Scheduler) TryRun(ctx context.Context, fn func(context.Context)) bool {
	if !s.running.CompareAndSwap(false, true) {
		if s.onSkip != nil {
			s.onSkip()
		}
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		fn(ctx)
	}()
	return true
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Wait blocks until the in-flight run, if any, finishes.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
