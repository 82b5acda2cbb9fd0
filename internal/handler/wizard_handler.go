package handler

import (
	"encoding/json"
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Operation wizard
// ============================================================

func wizardStartHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wizard/sessions")
		defer span.End()

		clientID := ClientIDFromContext(ctx)
		view := wizardSvc.StartSession(ctx, clientID)
		writeJSON(w, http.StatusCreated, view)
	}
}

func wizardGetHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/wizard/sessions/{sessionId}")
		defer span.End()

		view, err := wizardSvc.GetSession(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func wizardEndHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "DELETE /v1/wizard/sessions/{sessionId}")
		defer span.End()

		wizardSvc.EndSession(chi.URLParam(r, "sessionId"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func wizardConfigureHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/wizard/sessions/{sessionId}")
		defer span.End()

		var req service.ConfigureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := wizardSvc.Configure(ctx, chi.URLParam(r, "sessionId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type couponRequest struct {
	Code string `json:"code"`
}

func wizardApplyCouponHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wizard/sessions/{sessionId}/coupon")
		defer span.End()

		var req couponRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := wizardSvc.ApplyCoupon(ctx, chi.URLParam(r, "sessionId"), req.Code)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func wizardClearCouponHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "DELETE /v1/wizard/sessions/{sessionId}/coupon")
		defer span.End()

		view, err := wizardSvc.ClearCoupon(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func wizardReviewHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wizard/sessions/{sessionId}/review")
		defer span.End()

		view, err := wizardSvc.Review(ctx, chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func wizardBackHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/wizard/sessions/{sessionId}/back")
		defer span.End()

		view, err := wizardSvc.BackToConfigure(chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func wizardConfirmHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wizard/sessions/{sessionId}/confirm")
		defer span.End()

		view, err := wizardSvc.Confirm(ctx, chi.URLParam(r, "sessionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func wizardCancelHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wizard/sessions/{sessionId}/cancel")
		defer span.End()

		var req cancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		view, err := wizardSvc.Cancel(ctx, chi.URLParam(r, "sessionId"), req.Reason)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// wizardProofHandler accepts a multipart form with up to four files
// under the "files" field plus an optional "voucherCode" value.
func wizardProofHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/wizard/sessions/{sessionId}/proof")
		defer span.End()

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		var files []domain.DocumentUpload
		if r.MultipartForm != nil {
			for _, fh := range r.MultipartForm.File["files"] {
				upload, err := readUpload("files", fh)
				if err != nil {
					writeError(w, http.StatusBadRequest, "could not read uploaded file")
					return
				}
				files = append(files, upload)
			}
		}
		voucherCode := r.FormValue("voucherCode")

		view, err := wizardSvc.SubmitProof(ctx, chi.URLParam(r, "sessionId"), voucherCode, files)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func wizardResumeHandler(wizardSvc *service.WizardService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/operations/{operationId}/resume")
		defer span.End()

		clientID := ClientIDFromContext(ctx)
		view, err := wizardSvc.Resume(ctx, clientID, chi.URLParam(r, "operationId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}
