// Package presence runs the per-user background workers that mirror
// Last.fm now-playing state into Slack statuses, and the supervisor that
// enforces at most one live worker per Slack user.
package presence

import (
	"context"
	"sync"

	"github.com/Suyashtnt/slackfm/telemetry"
)

// RunFunc is the body of one worker. It must return promptly once its
// context is cancelled.
type RunFunc func(ctx context.Context)

// handle is the supervisor's bookkeeping for one running worker. The
// generation distinguishes a worker from its replacement so late
// self-removal never evicts a successor.
type handle struct {
	cancel context.CancelFunc
	gen    uint64
}

// Supervisor tracks at most one live worker per Slack user ID. Spawning
// over a live worker cancels it first (last caller wins), cancelling an
// absent one is a no-op, and every worker removes its own entry when it
// exits, whatever the reason.
type Supervisor struct {
	base context.Context

	mu      sync.Mutex
	workers map[string]*handle
	nextGen uint64
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor whose workers all derive from base,
// so cancelling base stops every worker.
func NewSupervisor(base context.Context) *Supervisor {
	return &Supervisor{
		base:    base,
		workers: make(map[string]*handle),
	}
}

// Spawn starts run as the worker for id, cancelling any worker already
// registered under that id.
func (s *Supervisor) Spawn(id string, run RunFunc) {
	ctx, cancel := context.WithCancel(s.base)

	s.mu.Lock()
	if old, ok := s.workers[id]; ok {
		old.cancel()
	}
	s.nextGen++
	gen := s.nextGen
	s.workers[id] = &handle{cancel: cancel, gen: gen}
	n := len(s.workers)
	s.wg.Add(1)
	s.mu.Unlock()
	telemetry.SetWorkers(n)

	go func() {
		defer s.wg.Done()
		defer s.release(id, gen)
		run(ctx)
	}()
}

// release drops the worker's own handle on exit, unless a replacement
// already owns the slot.
func (s *Supervisor) release(id string, gen uint64) {
	s.mu.Lock()
	if h, ok := s.workers[id]; ok && h.gen == gen {
		h.cancel()
		delete(s.workers, id)
	}
	n := len(s.workers)
	s.mu.Unlock()
	telemetry.SetWorkers(n)
}

// Cancel requests cooperative cancellation of the worker for id and drops
// its handle. Cancelling an id with no worker is a no-op.
func (s *Supervisor) Cancel(id string) {
	s.mu.Lock()
	if h, ok := s.workers[id]; ok {
		h.cancel()
		delete(s.workers, id)
	}
	n := len(s.workers)
	s.mu.Unlock()
	telemetry.SetWorkers(n)
}

// CancelAll cancels every worker. Pair with Wait during shutdown.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	for id, h := range s.workers {
		h.cancel()
		delete(s.workers, id)
	}
	s.mu.Unlock()
	telemetry.SetWorkers(0)
}

// Wait blocks until every spawned worker has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Running reports whether a worker is registered for id.
func (s *Supervisor) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workers[id]
	return ok
}

// Len returns the number of registered workers.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
