package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/infra/backend"
	"github.com/cambioseguro/portal-bff-go/internal/infra/resilience"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := resilience.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		MaxConcurrency: 10,
	}
	return backend.NewClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("test"), cfg, zap.NewNop())
}

func TestRateSnapshot(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/platform/public/exchange-rates" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"buyRate":   "3.750",
			"sellRate":  "3.720",
			"updatedAt": "2026-03-10T15:00:00Z",
		})
	}))

	rate, err := client.RateSnapshot(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rate.BuyRate.String() != "3.75" {
		t.Errorf("unexpected buy rate %s", rate.BuyRate)
	}
	if rate.AsOf.IsZero() {
		t.Error("expected the published timestamp")
	}
}

func TestRateSnapshot_RetriesTransientFailure(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"buyRate": "3.750", "sellRate": "3.720", "updatedAt": "2026-03-10T15:00:00Z"})
	}))

	if _, err := client.RateSnapshot(context.Background()); err != nil {
		t.Fatalf("expected the retry to recover, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestLogin_BackendMessageSurfacesVerbatim(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "credenciales inválidas"})
	}))

	_, err := client.Login(context.Background(), &domain.LoginRequest{Email: "a@b.pe", Password: "x"})
	var berr *domain.ErrBackend
	if !errors.As(err, &berr) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if berr.Message != "credenciales inválidas" {
		t.Errorf("message must pass through verbatim, got %q", berr.Message)
	}
	if berr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", berr.Status)
	}
	// Mutations and credential calls are never retried.
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly one call, got %d", got)
	}
}

func TestCreateOperation_NotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.CreateOperation(context.Background(), "client-1", &port.CreateOperationRequest{
		Direction: domain.DirectionBuy,
		AmountIn:  "1000",
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("create must fire exactly once, got %d calls", got)
	}
}

func TestCreateOperation_Success(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/operations/create" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["clientId"] != "client-1" {
			t.Errorf("expected clientId in payload, got %v", body["clientId"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":        "op-1",
			"code":      "OP-0001",
			"direction": "buy",
			"state":     "pending",
			"createdAt": "2026-03-10T15:00:00Z",
		})
	}))

	op, err := client.CreateOperation(context.Background(), "client-1", &port.CreateOperationRequest{
		Direction: domain.DirectionBuy,
		AmountIn:  "1000",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if op.ID != "op-1" || op.State != domain.OperationPending {
		t.Errorf("unexpected operation %+v", op)
	}
	if op.CreatedAt.IsZero() {
		t.Error("expected the server creation time")
	}
}

func TestGetOperation_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	}))

	_, err := client.GetOperation(context.Background(), "missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitProof_MultipartPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("server could not parse multipart: %v", err)
		}
		if r.FormValue("operationId") != "op-1" {
			t.Errorf("expected operationId field, got %q", r.FormValue("operationId"))
		}
		if r.FormValue("voucherCode") != "VCH-9" {
			t.Errorf("expected voucherCode field, got %q", r.FormValue("voucherCode"))
		}
		if len(r.MultipartForm.File["receipt"]) != 1 {
			t.Errorf("expected one receipt file, got %d", len(r.MultipartForm.File["receipt"]))
		}
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SubmitProof(context.Background(), "op-1", "VCH-9", []domain.DocumentUpload{
		{FieldName: "receipt", FileName: "receipt.pdf", Content: []byte("pdf-bytes")},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestListAccounts(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/web/my-accounts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "acc-1", "bankName": "BCP", "currency": "USD"},
		})
	}))

	accounts, err := client.ListAccounts(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(accounts) != 1 || accounts[0].BankName != "BCP" {
		t.Errorf("unexpected accounts %+v", accounts)
	}
}

func TestValidateReferral_AttachesPipAdjustment(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": "AMIGO1", "isValid": true})
	}))

	discount, err := client.ValidateReferral(context.Background(), "AMIGO1", "client-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !discount.IsValid {
		t.Fatal("expected a valid discount")
	}
	if !discount.PipAdjustment.Equal(domain.ReferralPipAdjustment) {
		t.Errorf("expected pip adjustment 0.003, got %s", discount.PipAdjustment)
	}
}
