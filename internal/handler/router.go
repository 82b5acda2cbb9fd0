package handler

import (
	"net/http"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/infra/observability"
	"github.com/cambioseguro/portal-bff-go/internal/ratefeed"
	"github.com/cambioseguro/portal-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles everything the router serves.
type Services struct {
	Auth      *service.AuthService
	Rates     *service.RateService
	Wizard    *service.WizardService
	Accounts  *service.AccountsService
	Referrals *service.ReferralService
	KYC       *service.KYCService
	Ops       *service.OperationsService
	Feed      *ratefeed.Feed
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, metrics *observability.Metrics, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Feed))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Public: authentication and the rate calculator.
		r.Post("/auth/login", authLoginHandler(svcs.Auth, logger))
		r.Post("/auth/register", authRegisterHandler(svcs.Auth, logger))
		r.Post("/auth/refresh", authRefreshHandler(svcs.Auth, logger))
		r.Post("/auth/logout", authLogoutHandler(svcs.Auth, logger))

		r.Get("/rates/current", currentRateHandler(svcs.Rates, logger))
		r.Get("/rates/quote", quoteHandler(svcs.Rates, logger))
		r.Get("/metrics/feed", feedSnapshotHandler(metrics))

		// Protected: everything tied to a customer.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			// Wizard
			r.Post("/wizard/sessions", wizardStartHandler(svcs.Wizard, logger))
			r.Get("/wizard/sessions/{sessionId}", wizardGetHandler(svcs.Wizard, logger))
			r.Delete("/wizard/sessions/{sessionId}", wizardEndHandler(svcs.Wizard, logger))
			r.Patch("/wizard/sessions/{sessionId}", wizardConfigureHandler(svcs.Wizard, logger))
			r.Post("/wizard/sessions/{sessionId}/coupon", wizardApplyCouponHandler(svcs.Wizard, logger))
			r.Delete("/wizard/sessions/{sessionId}/coupon", wizardClearCouponHandler(svcs.Wizard, logger))
			r.Post("/wizard/sessions/{sessionId}/review", wizardReviewHandler(svcs.Wizard, logger))
			r.Post("/wizard/sessions/{sessionId}/back", wizardBackHandler(svcs.Wizard, logger))
			r.Post("/wizard/sessions/{sessionId}/confirm", wizardConfirmHandler(svcs.Wizard, logger))
			r.Post("/wizard/sessions/{sessionId}/cancel", wizardCancelHandler(svcs.Wizard, logger))
			r.Post("/wizard/sessions/{sessionId}/proof", wizardProofHandler(svcs.Wizard, logger))

			// Operations
			r.Get("/operations", listOperationsHandler(svcs.Ops, logger))
			r.Get("/operations/{operationId}", getOperationHandler(svcs.Ops, logger))
			r.Post("/operations/{operationId}/resume", wizardResumeHandler(svcs.Wizard, logger))
			r.Get("/dashboard", dashboardHandler(svcs.Ops, logger))

			// Bank accounts
			r.Get("/accounts", listAccountsHandler(svcs.Accounts, logger))
			r.Get("/accounts/selector", accountSelectorHandler(svcs.Accounts, logger))
			r.Post("/accounts", addAccountHandler(svcs.Accounts, logger))

			// Referrals
			r.Post("/referrals/validate", referralValidateHandler(svcs.Referrals, logger))
			r.Post("/referrals/reward-code", referralRewardHandler(svcs.Referrals, logger))
			r.Get("/referrals/stats", referralStatsHandler(svcs.Referrals, logger))

			// KYC
			r.Post("/kyc/documents", kycSubmitHandler(svcs.KYC, logger))
			r.Get("/kyc/status", kycStatusHandler(svcs.KYC, logger))
			r.Get("/kyc/notice", kycNoticeHandler(svcs.KYC, logger))
		})
	})

	return r
}

type healthResponse struct {
	Status     string `json:"status"`
	FeedStatus string `json:"feedStatus"`
	Time       string `json:"time"`
}

// healthzHandler reports liveness plus the rate-feed channel state. A
// degraded feed does not fail the probe; polling still serves rates.
func healthzHandler(feed *ratefeed.Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status: "ok",
			Time:   time.Now().UTC().Format(time.RFC3339),
		}
		if feed != nil {
			resp.FeedStatus = string(feed.Status())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func feedSnapshotHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetFeedSnapshot())
	}
}
