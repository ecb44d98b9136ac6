package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Feed is one independently polled cycle. Tick does the whole
// fetch-and-deliver step for one iteration.
type Feed struct {
	Name     string
	Interval time.Duration
	Tick     func(ctx context.Context)
}

// NewFeed builds a Feed from a fetch function and a result consumer.
func NewFeed[T any](name string, interval time.Duration, fetch func(ctx context.Context) Result[T], onResult func(Result[T])) Feed {
	return Feed{
		Name:     name,
		Interval: interval,
		Tick: func(ctx context.Context) {
			onResult(fetch(ctx))
		},
	}
}

// scheduler runs each feed on its own fixed-delay cycle: the next tick is
// armed only after the previous one has returned, so a slow fetch pushes
// the schedule out instead of overlapping it.
type scheduler struct {
	log *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func newScheduler(log *slog.Logger) *scheduler {
	return &scheduler{log: log}
}

// Start launches one goroutine per feed. It can be called once.
func (s *scheduler) Start(ctx context.Context, feeds ...Feed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for _, f := range feeds {
		if f.Interval <= 0 {
			s.cancel()
			return fmt.Errorf("feed %s: interval must be positive, got %s", f.Name, f.Interval)
		}
	}
	for _, f := range feeds {
		s.wg.Add(1)
		go s.run(ctx, f)
	}
	return nil
}

// Stop cancels every cycle and waits for them to exit. Safe to call more
// than once and before Start.
func (s *scheduler) Stop() {
	s.mu.Lock()
	if s.stopped || s.cancel == nil {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *scheduler) run(ctx context.Context, f Feed) {
	defer s.wg.Done()
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx, f)
			if ctx.Err() != nil {
				return
			}
			t.Reset(f.Interval)
		}
	}
}

func (s *scheduler) tick(ctx context.Context, f Feed) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("feed tick panicked", "feed", f.Name, "panic", r)
		}
	}()
	f.Tick(ctx)
}
