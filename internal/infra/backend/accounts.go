package backend

import (
	"context"
	"net/http"

	"github.com/cambioseguro/portal-bff-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

type wireAccount struct {
	ID            string `json:"id"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	CCI           string `json:"cci"`
	AccountType   string `json:"accountType"`
	Currency      string `json:"currency"`
}

func (w wireAccount) toDomain() domain.BankAccount {
	return domain.BankAccount{
		ID:            w.ID,
		BankName:      w.BankName,
		AccountNumber: w.AccountNumber,
		CCI:           w.CCI,
		AccountType:   w.AccountType,
		Currency:      w.Currency,
	}
}

// ListAccounts fetches the customer's linked bank accounts.
// Implements port.AccountsBackend.
func (c *Client) ListAccounts(ctx context.Context, clientID string) ([]domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Backend.ListAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	var rows []wireAccount
	err := c.withRetry(ctx, "backend/accounts", func() error {
		body := map[string]string{"clientId": clientID}
		return c.doJSON(ctx, http.MethodPost, "/api/web/my-accounts", body, &rows)
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.BankAccount, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, row.toDomain())
	}
	return accounts, nil
}

// AddBankAccount links a new account. Not retried.
func (c *Client) AddBankAccount(ctx context.Context, clientID string, req *domain.AddBankAccountRequest) (*domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Backend.AddBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	payload := struct {
		ClientID string `json:"clientId"`
		*domain.AddBankAccountRequest
	}{ClientID: clientID, AddBankAccountRequest: req}

	var wire wireAccount
	err := c.withBreaker("backend/accounts", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/web/add-bank-account", payload, &wire)
	})
	if err != nil {
		return nil, err
	}

	account := wire.toDomain()
	return &account, nil
}
