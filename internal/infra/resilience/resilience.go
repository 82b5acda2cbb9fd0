// Package resilience provides fault-tolerance patterns for backend
// calls: retry with exponential backoff, circuit breaker, and bulkhead.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// Config holds resilience parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxConcurrency int
}

// RetryWithBackoff executes fn with exponential backoff + jitter up to
// cfg.MaxRetries retries. It respects context cancellation. Only
// idempotent calls should be retried; user-facing mutations go through
// exactly once.
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialBackoff
	if cfg.MaxBackoff > 0 {
		policy.MaxInterval = cfg.MaxBackoff
	}
	policy.MaxElapsedTime = 0 // bounded by retry count, not wall clock

	capped := backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(cfg.MaxRetries)),
		ctx,
	)
	return backoff.Retry(fn, capped)
}

// NewCircuitBreaker creates a circuit breaker with sensible defaults
// for the exchange backend: trips after 5+ requests with a 60% failure
// ratio, re-probes after 10s.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}
