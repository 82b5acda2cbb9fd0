// Package service — AuthService proxies login/registration to the
// exchange backend and manages the portal's own session tokens: a
// short-lived JWT access token plus a rotating refresh token whose
// secret is stored bcrypt-hashed.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const bcryptCost = 10

// Claims are the portal access-token claims.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type refreshSession struct {
	clientID   string
	secretHash []byte
	expiresAt  time.Time
}

// AuthService orchestrates authentication flows.
type AuthService struct {
	backend    port.AuthBackend
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]refreshSession
}

// NewAuthService creates a new auth service.
func NewAuthService(backend port.AuthBackend, jwtSecret string, accessTTL, refreshTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		backend:    backend,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
		sessions:   make(map[string]refreshSession),
	}
}

// Login proxies the credentials to the backend and, on success, mints
// the portal session tokens.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	if req.Email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "credentials", Message: "email and password are required"}
	}

	profile, err := s.backend.Login(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.issueTokens(profile)
	if err != nil {
		return nil, err
	}

	s.logger.Info("auth: customer logged in",
		zap.String("client_id", profile.ClientID),
	)
	return resp, nil
}

// Register proxies registration to the backend. Password confirmation
// is checked locally before any network call; the session tokens are
// minted on success so the customer lands logged in.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	if req.Password != req.ConfirmPassword {
		return nil, &domain.ErrValidation{Field: "confirmPassword", Message: "passwords do not match"}
	}
	if req.Email == "" || req.Name == "" || req.DocumentNumber == "" {
		return nil, &domain.ErrValidation{Field: "registration", Message: "name, email and document are required"}
	}

	profile, err := s.backend.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := s.issueTokens(profile)
	if err != nil {
		return nil, err
	}

	s.logger.Info("auth: customer registered",
		zap.String("client_id", profile.ClientID),
	)
	return resp, nil
}

// Refresh rotates the refresh token and mints a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	id, secret, ok := splitRefreshToken(refreshToken)
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "invalid refresh token"}
	}

	s.mu.Lock()
	sess, found := s.sessions[id]
	s.mu.Unlock()

	if !found || time.Now().After(sess.expiresAt) {
		return nil, &domain.ErrUnauthorized{Message: "refresh token expired"}
	}
	if bcrypt.CompareHashAndPassword(sess.secretHash, []byte(secret)) != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid refresh token"}
	}

	profile, err := s.backend.GetProfile(ctx, sess.clientID)
	if err != nil {
		return nil, err
	}

	// Rotation: the old token is dead either way.
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	return s.issueTokens(profile)
}

// Logout revokes the refresh token.
func (s *AuthService) Logout(refreshToken string) {
	id, _, ok := splitRefreshToken(refreshToken)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// ValidateAccessToken parses and verifies a portal access token.
func (s *AuthService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}
	return claims, nil
}

func (s *AuthService) issueTokens(profile *domain.Profile) (*domain.LoginResponse, error) {
	now := time.Now()
	claims := &Claims{
		Sub:   profile.ClientID,
		Email: profile.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "portal-bff",
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash refresh secret: %w", err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = refreshSession{
		clientID:   profile.ClientID,
		secretHash: hash,
		expiresAt:  now.Add(s.refreshTTL),
	}
	s.mu.Unlock()

	return &domain.LoginResponse{
		ClientID:     profile.ClientID,
		Profile:      *profile,
		AccessToken:  accessToken,
		RefreshToken: id + "." + secret,
	}, nil
}

func splitRefreshToken(token string) (id, secret string, ok bool) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
