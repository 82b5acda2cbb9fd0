package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type wireOperation struct {
	ID                    string          `json:"id"`
	Code                  string          `json:"code"`
	Direction             string          `json:"direction"`
	AmountPEN             decimal.Decimal `json:"amountPen"`
	AmountUSD             decimal.Decimal `json:"amountUsd"`
	RateApplied           decimal.Decimal `json:"rateApplied"`
	State                 string          `json:"state"`
	CreatedAt             string          `json:"createdAt"`
	SourceAccountID       string          `json:"sourceAccountId"`
	DestinationAccountID  string          `json:"destinationAccountId"`
	SettlementInstruction string          `json:"settlementInstruction"`
}

func (w wireOperation) toDomain() domain.Operation {
	createdAt, err := time.Parse(time.RFC3339, w.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}
	return domain.Operation{
		ID:                    w.ID,
		Code:                  w.Code,
		Direction:             domain.Direction(w.Direction),
		AmountPEN:             w.AmountPEN,
		AmountUSD:             w.AmountUSD,
		RateApplied:           w.RateApplied,
		State:                 domain.OperationState(w.State),
		CreatedAt:             createdAt,
		SourceAccountID:       w.SourceAccountID,
		DestinationAccountID:  w.DestinationAccountID,
		SettlementInstruction: w.SettlementInstruction,
	}
}

// CreateOperation submits a new exchange operation. The backend
// recomputes the amounts; the quote in the request is advisory. Never
// retried: duplicate submissions would create duplicate operations.
func (c *Client) CreateOperation(ctx context.Context, clientID string, req *port.CreateOperationRequest) (*domain.Operation, error) {
	ctx, span := tracer.Start(ctx, "Backend.CreateOperation")
	defer span.End()
	span.SetAttributes(
		attribute.String("client.id", clientID),
		attribute.String("direction", string(req.Direction)),
	)

	payload := struct {
		ClientID string `json:"clientId"`
		*port.CreateOperationRequest
	}{ClientID: clientID, CreateOperationRequest: req}

	var wire wireOperation
	err := c.withBreaker("backend/operations", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/operations/create", payload, &wire)
	})
	if err != nil {
		return nil, err
	}

	op := wire.toDomain()
	return &op, nil
}

// GetOperation fetches a single operation record, used when resuming a
// wizard session by operation id.
func (c *Client) GetOperation(ctx context.Context, operationID string) (*domain.Operation, error) {
	ctx, span := tracer.Start(ctx, "Backend.GetOperation")
	defer span.End()
	span.SetAttributes(attribute.String("operation.id", operationID))

	var wire wireOperation
	err := c.withRetry(ctx, "backend/operations", func() error {
		return c.doJSON(ctx, http.MethodGet, "/api/operations/"+operationID, nil, &wire)
	})
	if err != nil {
		return nil, err
	}
	if wire.ID == "" {
		return nil, &domain.ErrNotFound{Resource: "operation", ID: operationID}
	}

	op := wire.toDomain()
	return &op, nil
}

// ListOperations fetches the customer's operation history.
func (c *Client) ListOperations(ctx context.Context, clientID string) ([]domain.Operation, error) {
	ctx, span := tracer.Start(ctx, "Backend.ListOperations")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	var rows []wireOperation
	err := c.withRetry(ctx, "backend/operations", func() error {
		body := map[string]string{"clientId": clientID}
		return c.doJSON(ctx, http.MethodPost, "/api/web/my-operations", body, &rows)
	})
	if err != nil {
		return nil, err
	}

	ops := make([]domain.Operation, 0, len(rows))
	for _, row := range rows {
		ops = append(ops, row.toDomain())
	}
	return ops, nil
}

// CancelOperation requests cancellation with the customer's reason.
// Exactly one call per click: no retry.
func (c *Client) CancelOperation(ctx context.Context, operationID, reason string) error {
	ctx, span := tracer.Start(ctx, "Backend.CancelOperation")
	defer span.End()
	span.SetAttributes(attribute.String("operation.id", operationID))

	body := map[string]string{"reason": reason}
	return c.withBreaker("backend/operations", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/operations/"+operationID+"/cancel", body, nil)
	})
}

// SubmitProof uploads the proof-of-transfer files and/or voucher code
// as a single multipart payload. All-or-nothing; no retry.
func (c *Client) SubmitProof(ctx context.Context, operationID, voucherCode string, files []domain.DocumentUpload) error {
	ctx, span := tracer.Start(ctx, "Backend.SubmitProof")
	defer span.End()
	span.SetAttributes(
		attribute.String("operation.id", operationID),
		attribute.Int("files", len(files)),
	)

	fields := map[string]string{"operationId": operationID}
	if voucherCode != "" {
		fields["voucherCode"] = voucherCode
	}
	return c.withBreaker("backend/operations", func() error {
		return c.doMultipart(ctx, "/api/web/submit-proof", fields, files, nil)
	})
}
