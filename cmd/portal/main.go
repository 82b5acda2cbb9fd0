package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/config"
	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/handler"
	"github.com/cambioseguro/portal-bff-go/internal/infra/backend"
	"github.com/cambioseguro/portal-bff-go/internal/infra/cache"
	"github.com/cambioseguro/portal-bff-go/internal/infra/observability"
	"github.com/cambioseguro/portal-bff-go/internal/infra/resilience"
	"github.com/cambioseguro/portal-bff-go/internal/infra/stream"
	"github.com/cambioseguro/portal-bff-go/internal/ratefeed"
	"github.com/cambioseguro/portal-bff-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend_base_url", cfg.BackendBaseURL),
		zap.String("backend_ws_url", cfg.BackendWSURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("rate_poll_interval", cfg.PollInterval),
		zap.Duration("wizard_session_ttl", cfg.SessionTTL),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "portal-bff")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("exchange-backend")

	// --- Backend client ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	backendClient := backend.NewClient(httpClient, cfg.BackendBaseURL, cb, resilienceCfg, logger)

	// --- Rate feed (push channel + polling fallback) ---
	wsClient := stream.NewClient(stream.Config{
		URL:            cfg.BackendWSURL,
		MaxAttempts:    cfg.ReconnectAttempts,
		InitialBackoff: cfg.ReconnectInitial,
		CeilingBackoff: cfg.ReconnectCeiling,
	}, logger)
	feed := ratefeed.New(backendClient, wsClient, cfg.PollInterval, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	feed.Start(ctx)
	defer feed.Stop()

	// --- Cache ---
	accountsCache := cache.New[[]domain.BankAccount](cfg.AccountsCacheTTL)
	defer accountsCache.Close()

	// --- Services ---
	authSvc := service.NewAuthService(backendClient, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, logger)
	rateSvc := service.NewRateService(feed, logger)
	referralSvc := service.NewReferralService(backendClient, logger)
	accountsSvc := service.NewAccountsService(backendClient, accountsCache, metrics, logger)
	wizardSvc := service.NewWizardService(backendClient, rateSvc, referralSvc, cfg.SessionTTL, metrics, logger)
	kycSvc := service.NewKYCService(backendClient, backendClient, cfg.KYCPollInterval, logger)
	defer kycSvc.Close()
	opsSvc := service.NewOperationsService(backendClient, backendClient, accountsSvc, feed, logger)

	// Live wiring: quotes track rate updates; backend pushes drive the
	// wizard lifecycle and the KYC approval notice.
	feed.Subscribe(wizardSvc.OnRateUpdate, nil)
	feed.OnEvent(wizardSvc.HandleStreamEvent)
	feed.OnEvent(kycSvc.HandleStreamEvent)

	// --- Router ---
	origins := strings.Split(cfg.AllowedOrigins, ",")
	router := handler.NewRouter(handler.Services{
		Auth:      authSvc,
		Rates:     rateSvc,
		Wizard:    wizardSvc,
		Accounts:  accountsSvc,
		Referrals: referralSvc,
		KYC:       kycSvc,
		Ops:       opsSvc,
		Feed:      feed,
	}, metrics, origins, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
