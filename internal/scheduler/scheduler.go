package scheduler

import (
	"sync"
	"time"
)

// Scheduler runs a function on a fixed interval until stopped. Used for the
// entry-store janitor sweep and the realtime background-refetch fallback.
type Scheduler struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// New creates a scheduler; it does not start until Start is called.
func New(interval time.Duration, fn func()) *Scheduler {
	return &Scheduler{interval: interval, fn: fn}
}

// Start begins periodic execution. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.fn()
			case <-stop:
				return
			}
		}
	}(s.stop, s.done)
}

// Stop halts execution and waits for the worker to exit. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
}
