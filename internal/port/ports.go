// Package port defines the interfaces (ports) for external
// dependencies. Following hexagonal architecture, these ports decouple
// the service layer from the concrete backend client and transports.
package port

import (
	"context"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
)

// AuthBackend proxies login and registration to the exchange backend.
type AuthBackend interface {
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.Profile, error)
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Profile, error)
	GetProfile(ctx context.Context, clientID string) (*domain.Profile, error)
}

// RateSource serves one-shot exchange-rate snapshots (the public,
// unauthenticated endpoint).
type RateSource interface {
	RateSnapshot(ctx context.Context) (*domain.ExchangeRate, error)
}

// StreamStatus reports the health of the push rate channel.
type StreamStatus string

const (
	StreamConnecting   StreamStatus = "connecting"
	StreamConnected    StreamStatus = "connected"
	StreamDisconnected StreamStatus = "disconnected"
	// StreamFailed means reconnect attempts are exhausted; polling
	// keeps the rate alive but no further push updates will arrive.
	StreamFailed StreamStatus = "failed"
)

// StreamEventKind tags the push events the backend emits.
type StreamEventKind string

const (
	// EventRatesUpdated carries a fresh bid/ask pair.
	EventRatesUpdated StreamEventKind = "tipos_cambio_actualizados"
	// EventOperationExpired is the backend's authoritative expiry signal.
	EventOperationExpired StreamEventKind = "operation_expired"
	// EventOperationUpdated carries a refreshed operation record.
	EventOperationUpdated StreamEventKind = "operacion_actualizada"
	// EventDocumentsApproved signals KYC approval for the user.
	EventDocumentsApproved StreamEventKind = "documents_approved"
)

// StreamEvent is one push message. Exactly one payload field is set,
// matching Kind.
type StreamEvent struct {
	Kind        StreamEventKind
	Rate        *domain.ExchangeRate
	OperationID string
	Operation   *domain.Operation
	ClientID    string
}

// RateStream is the persistent push channel for rate and per-user room
// events. Run blocks, delivering events and status changes through the
// callbacks, applying its own bounded reconnect policy, and returns
// when the context is cancelled or reconnection is exhausted.
type RateStream interface {
	Run(ctx context.Context, onEvent func(StreamEvent), onStatus func(StreamStatus))
}

// AccountsBackend manages the customer's linked bank accounts.
type AccountsBackend interface {
	ListAccounts(ctx context.Context, clientID string) ([]domain.BankAccount, error)
	AddBankAccount(ctx context.Context, clientID string, req *domain.AddBankAccountRequest) (*domain.BankAccount, error)
}

// CreateOperationRequest is the payload for the create-operation call.
type CreateOperationRequest struct {
	Direction            domain.Direction `json:"direction"`
	AmountIn             string           `json:"amountIn"`
	AmountOut            string           `json:"amountOut"`
	RateUsed             string           `json:"rateUsed"`
	SourceAccountID      string           `json:"sourceAccountId"`
	DestinationAccountID string           `json:"destinationAccountId"`
	CouponCode           string           `json:"couponCode,omitempty"`
}

// OperationsBackend drives the operation lifecycle on the backend.
type OperationsBackend interface {
	CreateOperation(ctx context.Context, clientID string, req *CreateOperationRequest) (*domain.Operation, error)
	GetOperation(ctx context.Context, operationID string) (*domain.Operation, error)
	ListOperations(ctx context.Context, clientID string) ([]domain.Operation, error)
	CancelOperation(ctx context.Context, operationID, reason string) error
	SubmitProof(ctx context.Context, operationID, voucherCode string, files []domain.DocumentUpload) error
}

// ReferralBackend validates codes and serves the referral program.
type ReferralBackend interface {
	ValidateReferral(ctx context.Context, code, clientID string) (*domain.ReferralDiscount, error)
	GenerateRewardCode(ctx context.Context, clientID string) (string, error)
	ReferralStats(ctx context.Context, clientID string) (*domain.ReferralStats, error)
}

// KYCBackend submits identity documents for review.
type KYCBackend interface {
	UploadDocuments(ctx context.Context, clientID string, files []domain.DocumentUpload) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
