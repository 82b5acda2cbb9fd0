package service

import (
	"context"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/port"
	"github.com/cambioseguro/portal-bff-go/internal/ratefeed"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var opsTracer = otel.Tracer("service/operations")

// OperationsService serves the operation history and the dashboard
// summary.
type OperationsService struct {
	ops      port.OperationsBackend
	profiles port.AuthBackend
	accounts *AccountsService
	feed     *ratefeed.Feed
	logger   *zap.Logger
}

// NewOperationsService creates the operations service.
func NewOperationsService(ops port.OperationsBackend, profiles port.AuthBackend, accounts *AccountsService, feed *ratefeed.Feed, logger *zap.Logger) *OperationsService {
	return &OperationsService{ops: ops, profiles: profiles, accounts: accounts, feed: feed, logger: logger}
}

// List returns the customer's operation history.
func (s *OperationsService) List(ctx context.Context, clientID string) ([]domain.Operation, error) {
	ctx, span := opsTracer.Start(ctx, "OperationsService.List")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	return s.ops.ListOperations(ctx, clientID)
}

// Get returns one operation record.
func (s *OperationsService) Get(ctx context.Context, operationID string) (*domain.Operation, error) {
	ctx, span := opsTracer.Start(ctx, "OperationsService.Get")
	defer span.End()

	return s.ops.GetOperation(ctx, operationID)
}

// Dashboard fans out the profile, account and operation fetches
// concurrently and attaches the current rate when one has arrived.
func (s *OperationsService) Dashboard(ctx context.Context, clientID string) (*domain.DashboardSummary, error) {
	ctx, span := opsTracer.Start(ctx, "OperationsService.Dashboard")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	summary := &domain.DashboardSummary{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		profile, err := s.profiles.GetProfile(gctx, clientID)
		if err != nil {
			return err
		}
		summary.Profile = profile
		return nil
	})
	g.Go(func() error {
		accounts, err := s.accounts.List(gctx, clientID)
		if err != nil {
			return err
		}
		summary.Accounts = accounts
		return nil
	})
	g.Go(func() error {
		operations, err := s.ops.ListOperations(gctx, clientID)
		if err != nil {
			return err
		}
		summary.Operations = operations
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if rate, ok := s.feed.Current(); ok {
		summary.Rate = &rate
	}
	return summary, nil
}
