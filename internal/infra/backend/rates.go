package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"

	"github.com/shopspring/decimal"
)

// wireRate maps the public exchange-rates payload.
type wireRate struct {
	BuyRate   decimal.Decimal `json:"buyRate"`
	SellRate  decimal.Decimal `json:"sellRate"`
	UpdatedAt string          `json:"updatedAt"`
}

// RateSnapshot fetches the one-shot current rate pair from the public,
// unauthenticated endpoint. Implements port.RateSource.
func (c *Client) RateSnapshot(ctx context.Context) (*domain.ExchangeRate, error) {
	ctx, span := tracer.Start(ctx, "Backend.RateSnapshot")
	defer span.End()

	var wire wireRate
	err := c.withRetry(ctx, "backend/rates", func() error {
		return c.doJSON(ctx, http.MethodGet, "/platform/public/exchange-rates", nil, &wire)
	})
	if err != nil {
		return nil, err
	}

	asOf, parseErr := time.Parse(time.RFC3339, wire.UpdatedAt)
	if parseErr != nil {
		asOf = time.Now()
	}

	return &domain.ExchangeRate{
		BuyRate:  wire.BuyRate,
		SellRate: wire.SellRate,
		AsOf:     asOf,
	}, nil
}
