package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/handler"
	"github.com/cambioseguro/portal-bff-go/internal/infra/backend"
	"github.com/cambioseguro/portal-bff-go/internal/infra/cache"
	"github.com/cambioseguro/portal-bff-go/internal/infra/observability"
	"github.com/cambioseguro/portal-bff-go/internal/infra/resilience"
	"github.com/cambioseguro/portal-bff-go/internal/infra/stream"
	"github.com/cambioseguro/portal-bff-go/internal/ratefeed"
	"github.com/cambioseguro/portal-bff-go/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// newExchangeBackend mocks every backend endpoint the portal calls.
func newExchangeBackend(t *testing.T) *httptest.Server {
	t.Helper()

	profile := map[string]string{
		"clientId":           "client-1",
		"name":               "Maria Quispe",
		"email":              "maria@example.pe",
		"documentType":       "dni",
		"documentNumber":     "44556677",
		"verificationStatus": "approved",
	}
	operation := map[string]any{
		"id":        "op-1",
		"code":      "OP-0001",
		"direction": "buy",
		"amountUsd": "1000",
		"amountPen": "3750.00",
		"state":     "pending",
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/client/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(profile)
	})
	mux.HandleFunc("GET /api/client/profile/client-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(profile)
	})
	mux.HandleFunc("GET /platform/public/exchange-rates", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"buyRate":   "3.750",
			"sellRate":  "3.720",
			"updatedAt": time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("POST /api/web/my-accounts", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"id": "acc-usd", "bankName": "BCP", "accountNumber": "191-123", "accountType": "savings", "currency": "USD"},
			{"id": "acc-pen", "bankName": "Interbank", "accountNumber": "200-456", "accountType": "checking", "currency": "PEN"},
		})
	})
	mux.HandleFunc("POST /api/operations/create", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["clientId"] != "client-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(operation)
	})
	mux.HandleFunc("GET /api/operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(operation)
	})
	mux.HandleFunc("POST /api/web/submit-proof", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.FormValue("operationId") != "op-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/web/my-operations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{operation})
	})
	mux.HandleFunc("POST /api/referrals/validate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": "AMIGO1", "isValid": true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newPushChannel mocks the websocket rate channel. It accepts the
// connection and holds it open without pushing anything.
func newPushChannel(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newPortal wires the real client, feed, services and router against
// the mock exchange backend.
func newPortal(t *testing.T) *httptest.Server {
	t.Helper()

	backendSrv := newExchangeBackend(t)
	pushSrv := newPushChannel(t)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: 10 * time.Millisecond, MaxConcurrency: 10}
	client := backend.NewClient(
		&http.Client{Timeout: 5 * time.Second},
		backendSrv.URL,
		resilience.NewCircuitBreaker("integration"),
		cfg,
		logger,
	)

	streamClient := stream.NewClient(stream.Config{
		URL:            "ws" + strings.TrimPrefix(pushSrv.URL, "http"),
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Millisecond,
		CeilingBackoff: 50 * time.Millisecond,
	}, logger)

	feed := ratefeed.New(client, streamClient, time.Hour, metrics, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	feed.Start(ctx)
	t.Cleanup(feed.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := feed.Current(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("feed never delivered the startup snapshot")
		}
		time.Sleep(5 * time.Millisecond)
	}

	accountCache := cache.New[[]domain.BankAccount](time.Minute)
	t.Cleanup(accountCache.Close)

	rateSvc := service.NewRateService(feed, logger)
	referralSvc := service.NewReferralService(client, logger)
	wizardSvc := service.NewWizardService(client, rateSvc, referralSvc, 30*time.Minute, metrics, logger)
	accountsSvc := service.NewAccountsService(client, accountCache, metrics, logger)
	kycSvc := service.NewKYCService(client, client, time.Hour, logger)

	feed.Subscribe(wizardSvc.OnRateUpdate, nil)
	feed.OnEvent(wizardSvc.HandleStreamEvent)
	feed.OnEvent(kycSvc.HandleStreamEvent)

	router := handler.NewRouter(handler.Services{
		Auth:      service.NewAuthService(client, "integration-secret", 15*time.Minute, time.Hour, logger),
		Rates:     rateSvc,
		Wizard:    wizardSvc,
		Accounts:  accountsSvc,
		Referrals: referralSvc,
		KYC:       kycSvc,
		Ops:       service.NewOperationsService(client, client, accountsSvc, feed, logger),
		Feed:      feed,
	}, metrics, []string{"*"}, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

// TestIntegration_FullWizardFlow walks the whole customer journey:
// login, live rate, account selector, wizard configure through proof,
// then history and dashboard.
func TestIntegration_FullWizardFlow(t *testing.T) {
	portal := newPortal(t)

	// --- Login ---
	var session domain.LoginResponse
	status := doJSON(t, http.MethodPost, portal.URL+"/v1/auth/login", "",
		map[string]string{"email": "maria@example.pe", "password": "secret"}, &session)
	if status != http.StatusOK {
		t.Fatalf("login returned %d", status)
	}
	token := session.AccessToken

	// --- Live rate ---
	var current struct {
		Rate *domain.ExchangeRate `json:"rate"`
	}
	if status := doJSON(t, http.MethodGet, portal.URL+"/v1/rates/current", "", nil, &current); status != http.StatusOK {
		t.Fatalf("rates/current returned %d", status)
	}
	if current.Rate == nil || current.Rate.BuyRate.String() != "3.75" {
		t.Fatalf("unexpected rate %+v", current.Rate)
	}

	// --- Quote preview ---
	var quote domain.Quote
	if status := doJSON(t, http.MethodGet, portal.URL+"/v1/rates/quote?direction=buy&amount=1000", "", nil, &quote); status != http.StatusOK {
		t.Fatalf("rates/quote returned %d", status)
	}
	if got := quote.AmountOut.StringFixed(2); got != "3750.00" {
		t.Errorf("expected amountOut 3750.00, got %s", got)
	}

	// --- Account selector ---
	var selector service.SelectorView
	if status := doJSON(t, http.MethodGet, portal.URL+"/v1/accounts/selector?direction=buy", token, nil, &selector); status != http.StatusOK {
		t.Fatalf("accounts/selector returned %d", status)
	}
	if len(selector.Source) != 1 || selector.Source[0].Currency != "USD" {
		t.Fatalf("unexpected selector source %+v", selector.Source)
	}
	if len(selector.Destination) != 1 || selector.Destination[0].Currency != "PEN" {
		t.Fatalf("unexpected selector destination %+v", selector.Destination)
	}

	// --- Start the wizard ---
	var view service.SessionView
	if status := doJSON(t, http.MethodPost, portal.URL+"/v1/wizard/sessions", token, nil, &view); status != http.StatusCreated {
		t.Fatalf("wizard start returned %d", status)
	}
	if view.State != domain.StateConfiguring {
		t.Fatalf("new session in state %s", view.State)
	}
	sessionURL := portal.URL + "/v1/wizard/sessions/" + view.SessionID

	// --- Configure ---
	direction := domain.DirectionBuy
	amount := "1000"
	confirmed := true
	config := service.ConfigureRequest{
		Direction:            &direction,
		Amount:               &amount,
		SourceAccountID:      &selector.Source[0].ID,
		DestinationAccountID: &selector.Destination[0].ID,
		OwnershipConfirmed:   &confirmed,
	}
	if status := doJSON(t, http.MethodPatch, sessionURL, token, config, &view); status != http.StatusOK {
		t.Fatalf("wizard configure returned %d", status)
	}
	if view.Quote == nil || view.Quote.AmountOut.StringFixed(2) != "3750.00" {
		t.Fatalf("configure did not attach the quote: %+v", view.Quote)
	}

	// --- Review and confirm ---
	if status := doJSON(t, http.MethodPost, sessionURL+"/review", token, nil, &view); status != http.StatusOK {
		t.Fatalf("wizard review returned %d", status)
	}
	if view.State != domain.StateAwaitingConfirmation {
		t.Fatalf("after review expected awaiting_confirmation, got %s", view.State)
	}

	if status := doJSON(t, http.MethodPost, sessionURL+"/confirm", token, nil, &view); status != http.StatusOK {
		t.Fatalf("wizard confirm returned %d", status)
	}
	if view.State != domain.StateTransferInstructions {
		t.Fatalf("after confirm expected transfer_instructions, got %s", view.State)
	}
	if view.Operation == nil || view.Operation.ID != "op-1" {
		t.Fatalf("confirm did not attach the operation: %+v", view.Operation)
	}
	if view.CountdownSeconds <= 0 || view.CountdownSeconds > 900 {
		t.Errorf("countdown out of range: %d", view.CountdownSeconds)
	}

	// --- Submit proof of transfer ---
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("files", "receipt.jpg")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("jpeg-bytes"))
	mw.WriteField("voucherCode", "VCH-001")
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, sessionURL+"/proof", &form)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("proof upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("proof upload returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decoding proof response: %v", err)
	}
	if view.State != domain.StateProofSubmitted {
		t.Fatalf("after proof expected proof_submitted, got %s", view.State)
	}

	// --- History and dashboard ---
	var history []domain.Operation
	if status := doJSON(t, http.MethodGet, portal.URL+"/v1/operations", token, nil, &history); status != http.StatusOK {
		t.Fatalf("operations returned %d", status)
	}
	if len(history) != 1 || history[0].ID != "op-1" {
		t.Fatalf("unexpected history %+v", history)
	}

	var dashboard domain.DashboardSummary
	if status := doJSON(t, http.MethodGet, portal.URL+"/v1/dashboard", token, nil, &dashboard); status != http.StatusOK {
		t.Fatalf("dashboard returned %d", status)
	}
	if dashboard.Profile == nil || dashboard.Profile.ClientID != "client-1" {
		t.Errorf("dashboard missing profile: %+v", dashboard.Profile)
	}
	if len(dashboard.Accounts) != 2 || len(dashboard.Operations) != 1 {
		t.Errorf("dashboard incomplete: %d accounts, %d operations", len(dashboard.Accounts), len(dashboard.Operations))
	}
	if dashboard.Rate == nil {
		t.Error("dashboard missing the live rate")
	}
}

// TestIntegration_CouponAdjustsQuote applies a referral coupon inside
// the wizard and checks the repriced quote.
func TestIntegration_CouponAdjustsQuote(t *testing.T) {
	portal := newPortal(t)

	var session domain.LoginResponse
	doJSON(t, http.MethodPost, portal.URL+"/v1/auth/login", "",
		map[string]string{"email": "maria@example.pe", "password": "secret"}, &session)
	token := session.AccessToken

	var view service.SessionView
	doJSON(t, http.MethodPost, portal.URL+"/v1/wizard/sessions", token, nil, &view)
	sessionURL := portal.URL + "/v1/wizard/sessions/" + view.SessionID

	direction := domain.DirectionBuy
	amount := "1000"
	config := service.ConfigureRequest{Direction: &direction, Amount: &amount}
	if status := doJSON(t, http.MethodPatch, sessionURL, token, config, &view); status != http.StatusOK {
		t.Fatalf("wizard configure returned %d", status)
	}

	if status := doJSON(t, http.MethodPost, sessionURL+"/coupon", token, map[string]string{"code": "AMIGO1"}, &view); status != http.StatusOK {
		t.Fatalf("coupon apply returned %d", status)
	}
	if view.Quote == nil || view.Quote.AmountOut.StringFixed(2) != "3753.00" {
		t.Fatalf("expected the discounted quote 3753.00, got %+v", view.Quote)
	}

	if status := doJSON(t, http.MethodDelete, sessionURL+"/coupon", token, nil, &view); status != http.StatusOK {
		t.Fatalf("coupon clear returned %d", status)
	}
	if view.Quote == nil || view.Quote.AmountOut.StringFixed(2) != "3750.00" {
		t.Fatalf("expected the base quote back, got %+v", view.Quote)
	}
	if view.Discount != nil {
		t.Errorf("discount must be cleared, got %+v", view.Discount)
	}
}
