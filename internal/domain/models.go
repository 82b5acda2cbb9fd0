// Package domain holds the core types of the exchange portal:
// rates, operations, bank accounts, referral discounts and the
// wizard session stages. The backend owns every authoritative
// record; these types are the portal's view of them.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency codes used by the exchange.
const (
	CurrencyUSD = "USD"
	CurrencyPEN = "PEN"
)

// Direction of a trade, from the customer's point of view.
type Direction string

const (
	// DirectionBuy: customer pays USD, receives PEN.
	DirectionBuy Direction = "buy"
	// DirectionSell: customer pays PEN, receives USD.
	DirectionSell Direction = "sell"
)

// Valid reports whether d is a known trade direction.
func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// SourceCurrency is the currency the customer pays for this direction.
func (d Direction) SourceCurrency() string {
	if d == DirectionBuy {
		return CurrencyUSD
	}
	return CurrencyPEN
}

// DestinationCurrency is the currency the customer receives.
func (d Direction) DestinationCurrency() string {
	if d == DirectionBuy {
		return CurrencyPEN
	}
	return CurrencyUSD
}

// ExchangeRate is a bid/ask pair as published by the backend.
// Each update supersedes the previous one wholesale.
type ExchangeRate struct {
	BuyRate  decimal.Decimal `json:"buyRate"`
	SellRate decimal.Decimal `json:"sellRate"`
	AsOf     time.Time       `json:"asOf"`
}

// Spread is the service margin between buy and sell rate.
func (r ExchangeRate) Spread() decimal.Decimal {
	return r.BuyRate.Sub(r.SellRate).Abs()
}

// OperationState mirrors the backend's operation lifecycle.
type OperationState string

const (
	OperationPending           OperationState = "pending"
	OperationTransferPending   OperationState = "transfer_pending"
	OperationSettlementPending OperationState = "settlement_pending"
	OperationCompleted         OperationState = "completed"
	OperationCancelled         OperationState = "cancelled"
	OperationRejected          OperationState = "rejected"
)

// Operation is the backend's record of an exchange operation.
// The portal only reads it and requests state transitions.
type Operation struct {
	ID                    string          `json:"id"`
	Code                  string          `json:"code"`
	Direction             Direction       `json:"direction"`
	AmountPEN             decimal.Decimal `json:"amountPen"`
	AmountUSD             decimal.Decimal `json:"amountUsd"`
	RateApplied           decimal.Decimal `json:"rateApplied"`
	State                 OperationState  `json:"state"`
	CreatedAt             time.Time       `json:"createdAt"`
	SourceAccountID       string          `json:"sourceAccountId"`
	DestinationAccountID  string          `json:"destinationAccountId"`
	SettlementInstruction string          `json:"settlementInstruction,omitempty"`
}

// BankAccount is a customer-linked settlement account.
type BankAccount struct {
	ID            string `json:"id"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	// CCI is the interbank code for banks without a direct account path.
	CCI         string `json:"cci,omitempty"`
	AccountType string `json:"accountType"`
	Currency    string `json:"currency"`
}

// AddBankAccountRequest creates a new linked account on the backend.
type AddBankAccountRequest struct {
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	CCI           string `json:"cci,omitempty"`
	AccountType   string `json:"accountType"`
	Currency      string `json:"currency"`
}

// ReferralDiscount is the ephemeral result of validating a coupon or
// referral code. It never outlives the wizard session it was entered in.
type ReferralDiscount struct {
	Code          string          `json:"code"`
	IsValid       bool            `json:"isValid"`
	PipAdjustment decimal.Decimal `json:"pipAdjustment"`
	Message       string          `json:"message,omitempty"`
}

// ReferralStats summarises a customer's referral program standing.
type ReferralStats struct {
	ClientID        string `json:"clientId"`
	ReferredCount   int    `json:"referredCount"`
	PointsEarned    int    `json:"pointsEarned"`
	RewardsRedeemed int    `json:"rewardsRedeemed"`
}

// DocumentType of the customer's identity document.
type DocumentType string

const (
	DocumentDNI      DocumentType = "dni"
	DocumentPassport DocumentType = "passport"
	// DocumentRUC is the business/tax-ID variant; it additionally
	// requires a business-registration document for KYC.
	DocumentRUC DocumentType = "ruc"
)

// VerificationStatus of the customer's KYC review.
type VerificationStatus string

const (
	VerificationNone      VerificationStatus = "none"
	VerificationSubmitted VerificationStatus = "submitted"
	VerificationApproved  VerificationStatus = "approved"
	VerificationRejected  VerificationStatus = "rejected"
)

// Profile is the portal's view of the authenticated customer.
type Profile struct {
	ClientID       string             `json:"clientId"`
	Name           string             `json:"name"`
	Email          string             `json:"email"`
	DocumentType   DocumentType       `json:"documentType"`
	DocumentNumber string             `json:"documentNumber"`
	Verification   VerificationStatus `json:"verification"`
}

// RequiresBusinessDocument reports whether KYC needs the extra
// business-registration upload for this profile.
func (p Profile) RequiresBusinessDocument() bool {
	return p.DocumentType == DocumentRUC
}

// DocumentUpload is one file attached to a KYC or proof submission.
type DocumentUpload struct {
	FieldName string
	FileName  string
	Content   []byte
}

// LoginRequest proxies the backend's client login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the backend profile plus the portal session tokens.
type LoginResponse struct {
	ClientID     string  `json:"clientId"`
	Profile      Profile `json:"profile"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
}

// RegisterRequest creates a new customer on the backend.
type RegisterRequest struct {
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	Password        string       `json:"password"`
	ConfirmPassword string       `json:"confirmPassword"`
	DocumentType    DocumentType `json:"documentType"`
	DocumentNumber  string       `json:"documentNumber"`
	ReferralCode    string       `json:"referralCode,omitempty"`
}

// KYCNotice is the one-time "documents approved" notice surfaced after
// the status poller observes full verification. It auto-expires.
type KYCNotice struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// DashboardSummary aggregates the data the portal home screen needs.
type DashboardSummary struct {
	Profile    *Profile      `json:"profile"`
	Accounts   []BankAccount `json:"accounts"`
	Operations []Operation   `json:"operations"`
	Rate       *ExchangeRate `json:"rate,omitempty"`
}
