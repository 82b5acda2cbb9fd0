// Package service provides the business logic layer (use cases) of the
// portal: rate quoting, the operation wizard, referrals, KYC, bank
// accounts and portal sessions. Everything authoritative happens on
// the exchange backend; these services orchestrate it.
package service

import (
	"context"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/port"
	"github.com/cambioseguro/portal-bff-go/internal/ratefeed"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var rateTracer = otel.Tracer("service/rates")

// RateService serves the current rate and display quotes off the feed.
type RateService struct {
	feed   *ratefeed.Feed
	logger *zap.Logger
}

// NewRateService creates a rate service on top of the feed.
func NewRateService(feed *ratefeed.Feed, logger *zap.Logger) *RateService {
	return &RateService{feed: feed, logger: logger}
}

// CurrentRate is the latest rate plus the push-channel status.
type CurrentRate struct {
	Rate   *domain.ExchangeRate `json:"rate,omitempty"`
	Status port.StreamStatus    `json:"status"`
	// Loading is true while no rate has arrived yet (the snapshot
	// failed softly and neither channel has delivered).
	Loading bool `json:"loading"`
}

// Current returns the latest accepted rate and feed status.
func (s *RateService) Current() CurrentRate {
	rate, ok := s.feed.Current()
	if !ok {
		return CurrentRate{Status: s.feed.Status(), Loading: true}
	}
	return CurrentRate{Rate: &rate, Status: s.feed.Status()}
}

// Subscribe proxies feed subscription for components that need live
// updates (the wizard recomputes quotes on every accepted rate).
func (s *RateService) Subscribe(onUpdate func(domain.ExchangeRate), onStatus func(port.StreamStatus)) func() {
	return s.feed.Subscribe(onUpdate, onStatus)
}

// Quote computes the displayed counter-amount for an entered amount at
// the current rate, applying the discount when present. Display-only;
// the backend recomputes on creation.
func (s *RateService) Quote(ctx context.Context, dir domain.Direction, amount string, discount decimal.Decimal) (*domain.Quote, error) {
	_, span := rateTracer.Start(ctx, "RateService.Quote")
	defer span.End()
	span.SetAttributes(
		attribute.String("direction", string(dir)),
		attribute.String("amount", amount),
	)

	amountIn, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "amount", Message: "amount must be a number"}
	}

	rate, ok := s.feed.Current()
	if !ok {
		return nil, &domain.ErrRateUnavailable{}
	}

	quote, err := domain.ComputeQuote(rate, dir, amountIn, discount)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}
