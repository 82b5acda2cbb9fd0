// Package timeutil provides scoped timers: every timer and ticker
// created through a Scope is cancelled when the scope is. Wizard
// sessions, the KYC poller and the rate-feed poll loop all hang their
// timers off a scope so teardown cannot leak intervals.
package timeutil

import (
	"sync"
	"time"
)

// Scope owns a set of timers and tickers with a single cancellation
// point. The zero value is not usable; call NewScope.
type Scope struct {
	mu     sync.Mutex
	timers []*time.Timer
	done   chan struct{}
	closed bool
}

// NewScope creates an empty timer scope.
func NewScope() *Scope {
	return &Scope{done: make(chan struct{})}
}

// Done is closed when the scope is cancelled.
func (s *Scope) Done() <-chan struct{} {
	return s.done
}

// AfterFunc schedules fn after d, unless the scope is cancelled first.
func (s *Scope) AfterFunc(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	t := time.AfterFunc(d, func() {
		select {
		case <-s.done:
		default:
			fn()
		}
	})
	s.timers = append(s.timers, t)
}

// Every runs fn at the given interval in its own goroutine until the
// scope is cancelled.
func (s *Scope) Every(interval time.Duration, fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Cancel stops every pending timer and ticker. Safe to call more than
// once.
func (s *Scope) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}
