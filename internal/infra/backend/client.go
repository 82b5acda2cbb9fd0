// Package backend provides the HTTP client for the exchange backend
// API. It is the portal's only collaborator: authentication, rates,
// accounts, operations, referrals and KYC all live behind it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("backend")

// Client wraps HTTP calls to the exchange backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates a backend client.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		logger:     logger,
	}
}

// backendError is the backend's error envelope. The message, when
// present, is surfaced to the user verbatim.
type backendError struct {
	Message string `json:"message"`
	Error_  string `json:"error"`
}

func (c *Client) decodeError(status int, body []byte) error {
	var envelope backendError
	_ = json.Unmarshal(body, &envelope)
	msg := envelope.Message
	if msg == "" {
		msg = envelope.Error_
	}
	return &domain.ErrBackend{Status: status, Message: msg}
}

// doJSON executes a JSON request against the backend. The response body
// is decoded into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, path, out)
}

// doMultipart executes a multipart upload. All files go in a single
// request; the submission is all-or-nothing.
func (c *Client) doMultipart(ctx context.Context, path string, fields map[string]string, files []domain.DocumentUpload, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.FieldName, f.FileName)
		if err != nil {
			return fmt.Errorf("create form file %s: %w", f.FieldName, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return fmt.Errorf("write form file %s: %w", f.FieldName, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	return c.send(req, path, out)
}

func (c *Client) send(req *http.Request, path string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("backend: request failed",
			zap.String("method", req.Method),
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("backend: failed to read response body",
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("backend: non-2xx response",
			zap.String("method", req.Method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return c.decodeError(resp.StatusCode, body)
	}

	c.logger.Debug("backend: request OK",
		zap.String("method", req.Method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// withBreaker routes fn through the circuit breaker. Used for every
// backend call; mutations get no retry on top.
func (c *Client) withBreaker(service string, fn func() error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		// Backend error envelopes pass through untouched so handlers
		// can surface the message verbatim.
		var be *domain.ErrBackend
		if errors.As(err, &be) {
			return be
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.ErrCircuitOpen{Service: service}
		}
		return &domain.ErrExternalService{Service: service, Err: err}
	}
	return nil
}

// withRetry adds the retry policy on top of the breaker. Only for
// idempotent reads.
func (c *Client) withRetry(ctx context.Context, service string, fn func() error) error {
	return c.withBreaker(service, func() error {
		return resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
}
