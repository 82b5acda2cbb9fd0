package handler

import (
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================
// Exchange rates & quotes
// ============================================================

func currentRateHandler(rateSvc *service.RateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/rates/current")
		defer span.End()

		writeJSON(w, http.StatusOK, rateSvc.Current())
	}
}

// quoteHandler computes a display quote outside any wizard session,
// e.g. for the public calculator. direction and amount come as query
// parameters; an optional pip discount applies referral pricing.
func quoteHandler(rateSvc *service.RateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/rates/quote")
		defer span.End()

		dir := domain.Direction(r.URL.Query().Get("direction"))
		amount := r.URL.Query().Get("amount")
		if amount == "" {
			writeError(w, http.StatusBadRequest, "amount is required")
			return
		}

		discount := decimal.Zero
		if r.URL.Query().Get("withReferral") == "true" {
			discount = domain.ReferralPipAdjustment
		}

		quote, err := rateSvc.Quote(ctx, dir, amount, discount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, quote)
	}
}
