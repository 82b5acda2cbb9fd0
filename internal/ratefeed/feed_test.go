package ratefeed_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/infra/observability"
	"github.com/cambioseguro/portal-bff-go/internal/port"
	"github.com/cambioseguro/portal-bff-go/internal/ratefeed"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type countingSource struct {
	mu    sync.Mutex
	calls int
	rate  domain.ExchangeRate
	err   error
}

func (s *countingSource) RateSnapshot(_ context.Context) (*domain.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := s.rate
	return &r, nil
}

func (s *countingSource) setRate(r domain.ExchangeRate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = r
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// scriptedStream hands the callbacks to the test and blocks until the
// context ends, so the test can script pushes and status changes.
type scriptedStream struct {
	mu       sync.Mutex
	onEvent  func(port.StreamEvent)
	onStatus func(port.StreamStatus)
	ready    chan struct{}
}

func newScriptedStream() *scriptedStream {
	return &scriptedStream{ready: make(chan struct{})}
}

func (s *scriptedStream) Run(ctx context.Context, onEvent func(port.StreamEvent), onStatus func(port.StreamStatus)) {
	s.mu.Lock()
	s.onEvent = onEvent
	s.onStatus = onStatus
	s.mu.Unlock()
	close(s.ready)
	<-ctx.Done()
}

func (s *scriptedStream) push(ev port.StreamEvent) {
	<-s.ready
	s.mu.Lock()
	fn := s.onEvent
	s.mu.Unlock()
	fn(ev)
}

func (s *scriptedStream) setStatus(status port.StreamStatus) {
	<-s.ready
	s.mu.Lock()
	fn := s.onStatus
	s.mu.Unlock()
	fn(status)
}

func rateAt(buy string) domain.ExchangeRate {
	return domain.ExchangeRate{
		BuyRate:  decimal.RequireFromString(buy),
		SellRate: decimal.RequireFromString("3.700"),
		AsOf:     time.Now(),
	}
}

func TestFeed_SnapshotFillsSlotOnStart(t *testing.T) {
	source := &countingSource{rate: rateAt("3.750")}
	feed := ratefeed.New(source, newScriptedStream(), time.Hour, observability.NewMetrics(), zap.NewNop())
	feed.Start(context.Background())
	defer feed.Stop()

	current, ok := feed.Current()
	if !ok {
		t.Fatal("expected a rate after start")
	}
	if current.BuyRate.String() != "3.75" && current.BuyRate.String() != "3.750" {
		t.Errorf("unexpected rate %s", current.BuyRate)
	}
}

func TestFeed_PushUpdateWins(t *testing.T) {
	source := &countingSource{rate: rateAt("3.750")}
	stream := newScriptedStream()
	feed := ratefeed.New(source, stream, time.Hour, observability.NewMetrics(), zap.NewNop())
	feed.Start(context.Background())
	defer feed.Stop()

	pushed := rateAt("3.780")
	stream.setStatus(port.StreamConnected)
	stream.push(port.StreamEvent{Kind: port.EventRatesUpdated, Rate: &pushed})

	current, _ := feed.Current()
	if !current.BuyRate.Equal(pushed.BuyRate) {
		t.Errorf("expected pushed rate %s, got %s", pushed.BuyRate, current.BuyRate)
	}
}

func TestFeed_LastWriteWins(t *testing.T) {
	source := &countingSource{rate: rateAt("3.750")}
	stream := newScriptedStream()
	feed := ratefeed.New(source, stream, time.Hour, observability.NewMetrics(), zap.NewNop())
	feed.Start(context.Background())
	defer feed.Stop()

	first := rateAt("3.780")
	second := rateAt("3.760")
	stream.push(port.StreamEvent{Kind: port.EventRatesUpdated, Rate: &first})
	stream.push(port.StreamEvent{Kind: port.EventRatesUpdated, Rate: &second})

	current, _ := feed.Current()
	if !current.BuyRate.Equal(second.BuyRate) {
		t.Errorf("last update must win: expected %s, got %s", second.BuyRate, current.BuyRate)
	}
}

func TestFeed_PollKeepsRateAliveWhenStreamFails(t *testing.T) {
	source := &countingSource{rate: rateAt("3.750")}
	stream := newScriptedStream()
	feed := ratefeed.New(source, stream, 20*time.Millisecond, observability.NewMetrics(), zap.NewNop())
	feed.Start(context.Background())
	defer feed.Stop()

	stream.setStatus(port.StreamFailed)
	source.setRate(rateAt("3.790"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		current, _ := feed.Current()
		if current.BuyRate.Equal(decimal.RequireFromString("3.790")) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poll never refreshed the rate after stream failure")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if feed.Status() != port.StreamFailed {
		t.Errorf("status must report the failed push channel, got %s", feed.Status())
	}
}

func TestFeed_PollSuppressedWhileConnected(t *testing.T) {
	source := &countingSource{rate: rateAt("3.750")}
	stream := newScriptedStream()
	feed := ratefeed.New(source, stream, 10*time.Millisecond, observability.NewMetrics(), zap.NewNop())
	feed.Start(context.Background())
	defer feed.Stop()

	stream.setStatus(port.StreamConnected)
	// Let any tick that raced the status change drain first.
	time.Sleep(30 * time.Millisecond)
	baseline := source.callCount()

	time.Sleep(100 * time.Millisecond)

	if got := source.callCount(); got != baseline {
		t.Errorf("polling must be suppressed while connected: %d extra calls", got-baseline)
	}
}

func TestFeed_SubscribeDeliversCurrentImmediately(t *testing.T) {
	source := &countingSource{rate: rateAt("3.750")}
	feed := ratefeed.New(source, newScriptedStream(), time.Hour, observability.NewMetrics(), zap.NewNop())
	feed.Start(context.Background())
	defer feed.Stop()

	got := make(chan domain.ExchangeRate, 1)
	unsubscribe := feed.Subscribe(func(r domain.ExchangeRate) { got <- r }, nil)
	defer unsubscribe()

	select {
	case r := <-got:
		if !r.BuyRate.Equal(decimal.RequireFromString("3.750")) {
			t.Errorf("unexpected immediate rate %s", r.BuyRate)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the current rate")
	}
}

func TestFeed_NonRateEventsReachHandlers(t *testing.T) {
	source := &countingSource{rate: rateAt("3.750")}
	stream := newScriptedStream()
	feed := ratefeed.New(source, stream, time.Hour, observability.NewMetrics(), zap.NewNop())

	events := make(chan port.StreamEvent, 1)
	feed.OnEvent(func(ev port.StreamEvent) { events <- ev })

	feed.Start(context.Background())
	defer feed.Stop()

	stream.push(port.StreamEvent{Kind: port.EventOperationExpired, OperationID: "op-9"})

	select {
	case ev := <-events:
		if ev.Kind != port.EventOperationExpired || ev.OperationID != "op-9" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never received the event")
	}
}

func TestFeed_SnapshotFailureIsSoft(t *testing.T) {
	source := &countingSource{err: context.DeadlineExceeded}
	feed := ratefeed.New(source, newScriptedStream(), time.Hour, observability.NewMetrics(), zap.NewNop())
	feed.Start(context.Background())
	defer feed.Stop()

	if _, ok := feed.Current(); ok {
		t.Fatal("no rate expected after a failed snapshot")
	}
	if feed.Status() == "" {
		t.Error("status must still report a value")
	}
}
