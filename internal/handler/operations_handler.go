package handler

import (
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Operation history & dashboard
// ============================================================

func listOperationsHandler(opsSvc *service.OperationsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/operations")
		defer span.End()

		operations, err := opsSvc.List(ctx, ClientIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, operations)
	}
}

func getOperationHandler(opsSvc *service.OperationsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/operations/{operationId}")
		defer span.End()

		op, err := opsSvc.Get(ctx, chi.URLParam(r, "operationId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, op)
	}
}

func dashboardHandler(opsSvc *service.OperationsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/dashboard")
		defer span.End()

		summary, err := opsSvc.Dashboard(ctx, ClientIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
