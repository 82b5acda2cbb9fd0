package service

import (
	"context"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/infra/observability"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var accountsTracer = otel.Tracer("service/accounts")

// AccountsService manages the customer's linked bank accounts. The
// in-memory list is a cache of the backend's, invalidated by a full
// re-fetch after every mutation.
type AccountsService struct {
	backend port.AccountsBackend
	cache   port.Cache[[]domain.BankAccount]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAccountsService creates the accounts service.
func NewAccountsService(backend port.AccountsBackend, cache port.Cache[[]domain.BankAccount], metrics *observability.Metrics, logger *zap.Logger) *AccountsService {
	return &AccountsService{backend: backend, cache: cache, metrics: metrics, logger: logger}
}

// List returns the customer's accounts, serving from cache when fresh.
func (s *AccountsService) List(ctx context.Context, clientID string) ([]domain.BankAccount, error) {
	ctx, span := accountsTracer.Start(ctx, "AccountsService.List")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	if cached, ok := s.cache.Get(clientID); ok {
		s.metrics.IncrCacheHit("accounts")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("accounts")

	accounts, err := s.backend.ListAccounts(ctx, clientID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(clientID, accounts)
	return accounts, nil
}

// SelectorView is the account picker for one trade direction: accounts
// the customer can pay from and receive into, plus add-account prompts
// when a required currency has no accounts.
type SelectorView struct {
	Direction   domain.Direction     `json:"direction"`
	Source      []domain.BankAccount `json:"source"`
	Destination []domain.BankAccount `json:"destination"`
	// AddSourceCurrency / AddDestinationCurrency name the currency an
	// account must be created in when the respective list is empty.
	AddSourceCurrency      string `json:"addSourceCurrency,omitempty"`
	AddDestinationCurrency string `json:"addDestinationCurrency,omitempty"`
}

// ForDirection filters the account list by the settlement currencies
// the chosen trade direction requires.
func (s *AccountsService) ForDirection(ctx context.Context, clientID string, dir domain.Direction) (*SelectorView, error) {
	ctx, span := accountsTracer.Start(ctx, "AccountsService.ForDirection")
	defer span.End()

	if !dir.Valid() {
		return nil, &domain.ErrValidation{Field: "direction", Message: "must be buy or sell"}
	}

	accounts, err := s.List(ctx, clientID)
	if err != nil {
		return nil, err
	}

	view := &SelectorView{
		Direction:   dir,
		Source:      filterByCurrency(accounts, dir.SourceCurrency()),
		Destination: filterByCurrency(accounts, dir.DestinationCurrency()),
	}
	if len(view.Source) == 0 {
		view.AddSourceCurrency = dir.SourceCurrency()
	}
	if len(view.Destination) == 0 {
		view.AddDestinationCurrency = dir.DestinationCurrency()
	}
	return view, nil
}

// Add links a new bank account, then invalidates and re-fetches the
// whole cached list (no incremental merge).
func (s *AccountsService) Add(ctx context.Context, clientID string, req *domain.AddBankAccountRequest) (*domain.BankAccount, error) {
	ctx, span := accountsTracer.Start(ctx, "AccountsService.Add")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	if req.BankName == "" {
		return nil, &domain.ErrValidation{Field: "bankName", Message: "bank name is required"}
	}
	if req.AccountNumber == "" && req.CCI == "" {
		return nil, &domain.ErrValidation{Field: "accountNumber", Message: "an account number or CCI is required"}
	}
	if req.Currency != domain.CurrencyUSD && req.Currency != domain.CurrencyPEN {
		return nil, &domain.ErrValidation{Field: "currency", Message: "currency must be USD or PEN"}
	}

	account, err := s.backend.AddBankAccount(ctx, clientID, req)
	if err != nil {
		return nil, err
	}

	s.cache.Delete(clientID)
	if _, err := s.List(ctx, clientID); err != nil {
		// The account is created; a failed re-fetch only leaves the
		// cache cold.
		s.logger.Warn("accounts: re-fetch after add failed",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
	}

	s.logger.Info("accounts: account added",
		zap.String("client_id", clientID),
		zap.String("bank", account.BankName),
		zap.String("currency", account.Currency),
	)
	return account, nil
}

func filterByCurrency(accounts []domain.BankAccount, currency string) []domain.BankAccount {
	filtered := make([]domain.BankAccount, 0, len(accounts))
	for _, a := range accounts {
		if a.Currency == currency {
			filtered = append(filtered, a)
		}
	}
	return filtered
}
