package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Referral program
// ============================================================

type validateCodeRequest struct {
	Code string `json:"code"`
}

func referralValidateHandler(referralSvc *service.ReferralService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/referrals/validate")
		defer span.End()

		var req validateCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		discount, err := referralSvc.Validate(ctx, req.Code, ClientIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, discount)
	}
}

type rewardCodeResponse struct {
	Code string `json:"code"`
}

func referralRewardHandler(referralSvc *service.ReferralService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/referrals/reward-code")
		defer span.End()

		code, err := referralSvc.GenerateRewardCode(ctx, ClientIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, rewardCodeResponse{Code: code})
	}
}

func referralStatsHandler(referralSvc *service.ReferralService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/referrals/stats")
		defer span.End()

		stats, err := referralSvc.Stats(ctx, ClientIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
