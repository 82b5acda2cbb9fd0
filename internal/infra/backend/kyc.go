package backend

import (
	"context"

	"github.com/cambioseguro/portal-bff-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// UploadDocuments submits the identity documents (and the
// business-registration document when present) as one multipart
// request. Implements port.KYCBackend. All-or-nothing; no retry.
func (c *Client) UploadDocuments(ctx context.Context, clientID string, files []domain.DocumentUpload) error {
	ctx, span := tracer.Start(ctx, "Backend.UploadDocuments")
	defer span.End()
	span.SetAttributes(
		attribute.String("client.id", clientID),
		attribute.Int("files", len(files)),
	)

	fields := map[string]string{"clientId": clientID}
	return c.withBreaker("backend/kyc", func() error {
		return c.doMultipart(ctx, "/api/client/upload-dni", fields, files, nil)
	})
}
