package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Bank accounts
// ============================================================

func listAccountsHandler(accountsSvc *service.AccountsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts")
		defer span.End()

		accounts, err := accountsSvc.List(ctx, ClientIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

func accountSelectorHandler(accountsSvc *service.AccountsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/selector")
		defer span.End()

		dir := domain.Direction(r.URL.Query().Get("direction"))
		view, err := accountsSvc.ForDirection(ctx, ClientIDFromContext(ctx), dir)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func addAccountHandler(accountsSvc *service.AccountsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts")
		defer span.End()

		var req domain.AddBankAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		account, err := accountsSvc.Add(ctx, ClientIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}
