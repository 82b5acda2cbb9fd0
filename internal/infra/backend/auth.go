package backend

import (
	"context"
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// wireProfile maps the backend's client payload.
type wireProfile struct {
	ClientID       string `json:"clientId"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber"`
	Verification   string `json:"verificationStatus"`
}

func (w wireProfile) toDomain() *domain.Profile {
	return &domain.Profile{
		ClientID:       w.ClientID,
		Name:           w.Name,
		Email:          w.Email,
		DocumentType:   domain.DocumentType(w.DocumentType),
		DocumentNumber: w.DocumentNumber,
		Verification:   domain.VerificationStatus(w.Verification),
	}
}

// Login proxies the backend's client login. Implements port.AuthBackend.
func (c *Client) Login(ctx context.Context, req *domain.LoginRequest) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Backend.Login")
	defer span.End()

	var wire wireProfile
	// Never retried: a login is a user-facing mutation of attempt counters.
	err := c.withBreaker("backend/login", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/client/login", req, &wire)
	})
	if err != nil {
		return nil, err
	}
	return wire.toDomain(), nil
}

// Register proxies client registration.
func (c *Client) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Backend.Register")
	defer span.End()

	var wire wireProfile
	err := c.withBreaker("backend/register", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/client/register", req, &wire)
	})
	if err != nil {
		return nil, err
	}
	return wire.toDomain(), nil
}

// GetProfile fetches the customer profile, including verification
// status the KYC poller watches.
func (c *Client) GetProfile(ctx context.Context, clientID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Backend.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	var wire wireProfile
	err := c.withRetry(ctx, "backend/profile", func() error {
		return c.doJSON(ctx, http.MethodGet, "/api/client/profile/"+clientID, nil, &wire)
	})
	if err != nil {
		return nil, err
	}
	return wire.toDomain(), nil
}
