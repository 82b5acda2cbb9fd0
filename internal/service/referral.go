package service

import (
	"context"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var referralTracer = otel.Tracer("service/referral")

// referralCodeLength is the exact length a referral/coupon code must
// have before any network call is made.
const referralCodeLength = 6

// ReferralService validates coupon/referral codes and serves the
// referral program endpoints.
type ReferralService struct {
	backend port.ReferralBackend
	logger  *zap.Logger
}

// NewReferralService creates a referral service.
func NewReferralService(backend port.ReferralBackend, logger *zap.Logger) *ReferralService {
	return &ReferralService{backend: backend, logger: logger}
}

// Validate checks a code. Codes that are not exactly 6 characters are
// rejected locally without a network call. A backend/network failure
// yields an invalid result with a generic retry message rather than an
// error; retrying is the user's click, never automatic.
func (s *ReferralService) Validate(ctx context.Context, code, clientID string) (*domain.ReferralDiscount, error) {
	ctx, span := referralTracer.Start(ctx, "ReferralService.Validate")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	if len(code) != referralCodeLength {
		return nil, &domain.ErrValidation{Field: "code", Message: "code must be exactly 6 characters"}
	}

	result, err := s.backend.ValidateReferral(ctx, code, clientID)
	if err != nil {
		s.logger.Warn("referral: validation call failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
		return &domain.ReferralDiscount{
			Code:    code,
			IsValid: false,
			Message: "could not validate the code, please try again",
		}, nil
	}
	return result, nil
}

// GenerateRewardCode mints a reward code from accumulated points.
func (s *ReferralService) GenerateRewardCode(ctx context.Context, clientID string) (string, error) {
	ctx, span := referralTracer.Start(ctx, "ReferralService.GenerateRewardCode")
	defer span.End()

	return s.backend.GenerateRewardCode(ctx, clientID)
}

// Stats returns the customer's referral standing.
func (s *ReferralService) Stats(ctx context.Context, clientID string) (*domain.ReferralStats, error) {
	ctx, span := referralTracer.Start(ctx, "ReferralService.Stats")
	defer span.End()

	return s.backend.ReferralStats(ctx, clientID)
}
