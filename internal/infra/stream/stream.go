// Package stream implements the push channel to the exchange backend:
// a WebSocket connection carrying rate updates and per-user room
// events, with a bounded reconnect policy. When the channel is down the
// rate feed falls back to polling; this package only worries about
// keeping the socket alive and decoding its frames.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config controls the reconnect policy.
type Config struct {
	URL string
	// MaxAttempts is the cap on consecutive reconnect attempts before
	// the stream gives up and reports StreamFailed.
	MaxAttempts int
	// InitialBackoff grows per attempt up to CeilingBackoff.
	InitialBackoff time.Duration
	CeilingBackoff time.Duration
	// ReadTimeout bounds how long a silent connection is considered
	// alive. Zero disables the read deadline.
	ReadTimeout time.Duration
}

// Client is a WebSocket rate-stream client. Implements port.RateStream.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

// NewClient creates a stream client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.CeilingBackoff == 0 {
		cfg.CeilingBackoff = 5 * time.Second
	}
	return &Client{cfg: cfg, logger: logger}
}

// wireFrame is the envelope of every push message.
type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wireRatePush struct {
	BuyRate   decimal.Decimal `json:"buyRate"`
	SellRate  decimal.Decimal `json:"sellRate"`
	UpdatedAt string          `json:"updatedAt"`
}

type wireOperationPush struct {
	OperationID string          `json:"operationId"`
	ClientID    string          `json:"clientId"`
	State       string          `json:"state"`
	CreatedAt   string          `json:"createdAt"`
	Code        string          `json:"code"`
	Direction   string          `json:"direction"`
	AmountPEN   decimal.Decimal `json:"amountPen"`
	AmountUSD   decimal.Decimal `json:"amountUsd"`
	RateApplied decimal.Decimal `json:"rateApplied"`
}

// Run connects and delivers events until ctx is cancelled or the
// reconnect budget is exhausted. A successful connection resets the
// attempt counter.
func (c *Client) Run(ctx context.Context, onEvent func(port.StreamEvent), onStatus func(port.StreamStatus)) {
	attempts := 0
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.CeilingBackoff
	policy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		onStatus(port.StreamConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			attempts++
			c.logger.Warn("stream: dial failed",
				zap.String("url", c.cfg.URL),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			if attempts >= c.cfg.MaxAttempts {
				c.logger.Error("stream: reconnect attempts exhausted",
					zap.Int("attempts", attempts),
				)
				onStatus(port.StreamFailed)
				return
			}
			onStatus(port.StreamDisconnected)
			wait := policy.NextBackOff()
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		attempts = 0
		policy.Reset()
		onStatus(port.StreamConnected)
		c.logger.Info("stream: connected", zap.String("url", c.cfg.URL))

		c.readLoop(ctx, conn, onEvent)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		onStatus(port.StreamDisconnected)
		c.logger.Warn("stream: connection lost, reconnecting")
	}
}

// readLoop decodes frames until the connection errors or ctx ends.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, onEvent func(port.StreamEvent)) {
	// Close the socket when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if c.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		event, ok := c.decode(payload)
		if !ok {
			continue
		}
		onEvent(event)
	}
}

func (c *Client) decode(payload []byte) (port.StreamEvent, bool) {
	var frame wireFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		c.logger.Debug("stream: undecodable frame", zap.Error(err))
		return port.StreamEvent{}, false
	}

	switch port.StreamEventKind(frame.Event) {
	case port.EventRatesUpdated:
		var push wireRatePush
		if err := json.Unmarshal(frame.Data, &push); err != nil {
			c.logger.Debug("stream: bad rate payload", zap.Error(err))
			return port.StreamEvent{}, false
		}
		asOf, err := time.Parse(time.RFC3339, push.UpdatedAt)
		if err != nil {
			asOf = time.Now()
		}
		return port.StreamEvent{
			Kind: port.EventRatesUpdated,
			Rate: &domain.ExchangeRate{
				BuyRate:  push.BuyRate,
				SellRate: push.SellRate,
				AsOf:     asOf,
			},
		}, true

	case port.EventOperationExpired:
		var push wireOperationPush
		if err := json.Unmarshal(frame.Data, &push); err != nil {
			return port.StreamEvent{}, false
		}
		return port.StreamEvent{
			Kind:        port.EventOperationExpired,
			OperationID: push.OperationID,
			ClientID:    push.ClientID,
		}, true

	case port.EventOperationUpdated:
		var push wireOperationPush
		if err := json.Unmarshal(frame.Data, &push); err != nil {
			return port.StreamEvent{}, false
		}
		createdAt, _ := time.Parse(time.RFC3339, push.CreatedAt)
		return port.StreamEvent{
			Kind:        port.EventOperationUpdated,
			OperationID: push.OperationID,
			ClientID:    push.ClientID,
			Operation: &domain.Operation{
				ID:          push.OperationID,
				Code:        push.Code,
				Direction:   domain.Direction(push.Direction),
				AmountPEN:   push.AmountPEN,
				AmountUSD:   push.AmountUSD,
				RateApplied: push.RateApplied,
				State:       domain.OperationState(push.State),
				CreatedAt:   createdAt,
			},
		}, true

	case port.EventDocumentsApproved:
		var push struct {
			ClientID string `json:"clientId"`
		}
		if err := json.Unmarshal(frame.Data, &push); err != nil {
			return port.StreamEvent{}, false
		}
		return port.StreamEvent{
			Kind:     port.EventDocumentsApproved,
			ClientID: push.ClientID,
		}, true
	}

	c.logger.Debug("stream: unknown event", zap.String("event", frame.Event))
	return port.StreamEvent{}, false
}
