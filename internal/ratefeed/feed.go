// Package ratefeed keeps a single current exchange-rate slot alive
// through two channels: the push stream when it is up, and a
// fixed-interval poll of the snapshot endpoint when it is not. The
// supervisor prefers push and suppresses polling while the stream is
// connected; it is the application-level store for "current rates",
// with one well-defined update path.
package ratefeed

import (
	"context"
	"sync"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/infra/observability"
	"github.com/cambioseguro/portal-bff-go/internal/infra/timeutil"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"go.uber.org/zap"
)

type subscriber struct {
	onUpdate func(domain.ExchangeRate)
	onStatus func(port.StreamStatus)
}

// Feed supervises the dual-channel rate subscription.
type Feed struct {
	source       port.RateSource
	stream       port.RateStream
	pollInterval time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger

	mu       sync.RWMutex
	current  *domain.ExchangeRate
	status   port.StreamStatus
	subs     map[int]subscriber
	nextID   int
	handlers []func(port.StreamEvent)

	scope  *timeutil.Scope
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a feed. Call Start to begin receiving updates.
func New(source port.RateSource, stream port.RateStream, pollInterval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Feed {
	return &Feed{
		source:       source,
		stream:       stream,
		pollInterval: pollInterval,
		metrics:      metrics,
		logger:       logger,
		status:       port.StreamConnecting,
		subs:         make(map[int]subscriber),
		scope:        timeutil.NewScope(),
	}
}

// Start fetches the one-shot snapshot, opens the push stream and arms
// the polling fallback. A snapshot failure is soft: logged, not fatal,
// since push or the next poll will fill the slot.
func (f *Feed) Start(ctx context.Context) {
	f.once.Do(func() {
		ctx, f.cancel = context.WithCancel(ctx)

		if rate, err := f.source.RateSnapshot(ctx); err != nil {
			f.logger.Warn("ratefeed: initial snapshot failed", zap.Error(err))
			f.metrics.IncrExternalError("backend")
		} else {
			f.accept(*rate, "poll")
		}

		go f.stream.Run(ctx, f.handleEvent, f.setStatus)

		// Fallback poll: suppressed while the push channel is live.
		f.scope.Every(f.pollInterval, func() {
			if f.Status() == port.StreamConnected {
				return
			}
			rate, err := f.source.RateSnapshot(ctx)
			if err != nil {
				f.logger.Warn("ratefeed: poll failed", zap.Error(err))
				f.metrics.IncrExternalError("backend")
				return
			}
			f.accept(*rate, "poll")
		})
	})
}

// Stop tears the feed down: stream context cancelled, poll stopped.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.scope.Cancel()
}

// Current returns the latest accepted rate, if any has arrived yet.
func (f *Feed) Current() (domain.ExchangeRate, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return domain.ExchangeRate{}, false
	}
	return *f.current, true
}

// Status returns the push-channel status. Polling keeps the rate alive
// even when this reports StreamFailed.
func (f *Feed) Status() port.StreamStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Subscribe registers observers for rate updates and connection-status
// changes. The latest rate, when present, is delivered immediately.
// The returned func unsubscribes.
func (f *Feed) Subscribe(onUpdate func(domain.ExchangeRate), onStatus func(port.StreamStatus)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = subscriber{onUpdate: onUpdate, onStatus: onStatus}
	current := f.current
	f.mu.Unlock()

	if current != nil && onUpdate != nil {
		onUpdate(*current)
	}

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// OnEvent registers a handler for non-rate push events (operation
// expiry/update, documents approved). Handlers run on the stream
// goroutine and must not block.
func (f *Feed) OnEvent(fn func(port.StreamEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fn)
}

func (f *Feed) handleEvent(ev port.StreamEvent) {
	if ev.Kind == port.EventRatesUpdated && ev.Rate != nil {
		f.accept(*ev.Rate, "push")
		return
	}

	f.mu.RLock()
	handlers := make([]func(port.StreamEvent), len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// accept overwrites the current-rate slot. Last write wins regardless
// of arrival order; no staleness detection.
func (f *Feed) accept(rate domain.ExchangeRate, channel string) {
	f.mu.Lock()
	f.current = &rate
	subs := make([]subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	f.metrics.IncrRateUpdate(channel)
	f.logger.Debug("ratefeed: rate accepted",
		zap.String("channel", channel),
		zap.String("buy", rate.BuyRate.String()),
		zap.String("sell", rate.SellRate.String()),
	)

	for _, s := range subs {
		if s.onUpdate != nil {
			s.onUpdate(rate)
		}
	}
}

func (f *Feed) setStatus(status port.StreamStatus) {
	f.mu.Lock()
	changed := f.status != status
	f.status = status
	subs := make([]subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	if !changed {
		return
	}

	f.metrics.SetFeedStatus(string(status))
	if status == port.StreamFailed {
		f.logger.Error("ratefeed: push channel failed permanently, polling keeps the rate alive")
	} else {
		f.logger.Info("ratefeed: push channel status", zap.String("status", string(status)))
	}

	for _, s := range subs {
		if s.onStatus != nil {
			s.onStatus(status)
		}
	}
}
