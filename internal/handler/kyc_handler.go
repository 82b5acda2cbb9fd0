package handler

import (
	"mime/multipart"
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// KYC / identity verification
// ============================================================

// kycSubmitHandler accepts a multipart form with "documentFront",
// "documentBack" and, for business profiles, "businessDocument".
func kycSubmitHandler(kycSvc *service.KYCService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/kyc/documents")
		defer span.End()

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		front, err := optionalUpload(r, "documentFront")
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read document front")
			return
		}
		back, err := optionalUpload(r, "documentBack")
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read document back")
			return
		}
		business, err := optionalUpload(r, "businessDocument")
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read business document")
			return
		}

		profile, err := kycSvc.SubmitDocuments(ctx, ClientIDFromContext(ctx), front, back, business)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func optionalUpload(r *http.Request, field string) (*domain.DocumentUpload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	return uploadFromHeader(field, headers[0])
}

func uploadFromHeader(field string, fh *multipart.FileHeader) (*domain.DocumentUpload, error) {
	upload, err := readUpload(field, fh)
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

func kycStatusHandler(kycSvc *service.KYCService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/kyc/status")
		defer span.End()

		profile, err := kycSvc.Status(ctx, ClientIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

type noticeResponse struct {
	Notice *domain.KYCNotice `json:"notice,omitempty"`
}

func kycNoticeHandler(kycSvc *service.KYCService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/kyc/notice")
		defer span.End()

		notice, _ := kycSvc.Notice(ClientIDFromContext(ctx))
		writeJSON(w, http.StatusOK, noticeResponse{Notice: notice})
	}
}
