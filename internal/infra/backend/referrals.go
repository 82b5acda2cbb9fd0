package backend

import (
	"context"
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

type wireReferralResult struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message"`
}

// ValidateReferral checks a referral/coupon code with the backend.
// Implements port.ReferralBackend. No retry: the service surfaces a
// generic retry message and lets the user re-click.
func (c *Client) ValidateReferral(ctx context.Context, code, clientID string) (*domain.ReferralDiscount, error) {
	ctx, span := tracer.Start(ctx, "Backend.ValidateReferral")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	body := map[string]string{"code": code, "clientId": clientID}
	var wire wireReferralResult
	err := c.withBreaker("backend/referrals", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/referrals/validate", body, &wire)
	})
	if err != nil {
		return nil, err
	}

	result := &domain.ReferralDiscount{
		Code:    code,
		IsValid: wire.IsValid,
		Message: wire.Message,
	}
	if wire.IsValid {
		result.PipAdjustment = domain.ReferralPipAdjustment
	}
	return result, nil
}

// GenerateRewardCode asks the backend to mint a reward code for the
// customer's accumulated referral points.
func (c *Client) GenerateRewardCode(ctx context.Context, clientID string) (string, error) {
	ctx, span := tracer.Start(ctx, "Backend.GenerateRewardCode")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	body := map[string]string{"clientId": clientID}
	var wire struct {
		Code string `json:"code"`
	}
	err := c.withBreaker("backend/referrals", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/referrals/generate-reward-code", body, &wire)
	})
	if err != nil {
		return "", err
	}
	return wire.Code, nil
}

// ReferralStats fetches the customer's referral standing.
func (c *Client) ReferralStats(ctx context.Context, clientID string) (*domain.ReferralStats, error) {
	ctx, span := tracer.Start(ctx, "Backend.ReferralStats")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	var stats domain.ReferralStats
	err := c.withRetry(ctx, "backend/referrals", func() error {
		return c.doJSON(ctx, http.MethodGet, "/api/referrals/stats/"+clientID, nil, &stats)
	})
	if err != nil {
		return nil, err
	}
	stats.ClientID = clientID
	return &stats, nil
}
