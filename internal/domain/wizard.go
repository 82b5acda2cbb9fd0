package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferWindow is the fixed window the customer has to wire the
// funds after an operation is created. The backend is authoritative on
// expiry; this window only drives the displayed countdown.
const TransferWindow = 900 * time.Second

// MaxProofFiles is the client-side cap on attached proof-of-transfer
// files. A submission exceeding it is rejected before any network call.
const MaxProofFiles = 4

// WizardState identifies the stage a wizard session is in.
type WizardState string

const (
	StateConfiguring          WizardState = "configuring"
	StateAwaitingConfirmation WizardState = "awaiting_confirmation"
	StateTransferInstructions WizardState = "transfer_instructions"
	StateProofSubmitted       WizardState = "proof_submitted"
	StateSettlementPending    WizardState = "settlement_pending"
	StateCancelled            WizardState = "cancelled"
	StateRejected             WizardState = "rejected"
	StateExpired              WizardState = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s WizardState) Terminal() bool {
	switch s {
	case StateCancelled, StateRejected, StateExpired, StateSettlementPending:
		return true
	}
	return false
}

// Stage is the tagged union of wizard stages. Each variant carries only
// the data that is valid for that stage, so impossible combinations
// (countdown data while still configuring, say) cannot be represented.
type Stage interface {
	State() WizardState
}

// Configuring is the first stage: the customer picks direction, amount
// and accounts, and optionally applies a referral/coupon code.
type Configuring struct {
	Direction            Direction
	AmountIn             decimal.Decimal
	Quote                *Quote
	SourceAccountID      string
	DestinationAccountID string
	OwnershipConfirmed   bool
	Discount             *ReferralDiscount
}

func (Configuring) State() WizardState { return StateConfiguring }

// AwaitingConfirmation holds the validated configuration while the
// customer reviews it before the create-operation call fires.
type AwaitingConfirmation struct {
	Config Configuring
}

func (AwaitingConfirmation) State() WizardState { return StateAwaitingConfirmation }

// TransferInstructions is entered once the backend created the
// operation. The countdown is derived from Operation.CreatedAt, never
// stored, so a reload recomputes the remaining time.
type TransferInstructions struct {
	Operation Operation
}

func (TransferInstructions) State() WizardState { return StateTransferInstructions }

// ProofSubmitted holds briefly after a successful proof upload before
// the session advances to settlement-pending.
type ProofSubmitted struct {
	Operation Operation
}

func (ProofSubmitted) State() WizardState { return StateProofSubmitted }

// SettlementPending is the final in-wizard stage: funds received by the
// service, customer awaiting settlement.
type SettlementPending struct {
	Operation Operation
}

func (SettlementPending) State() WizardState { return StateSettlementPending }

// Cancelled is a terminal exit from TransferInstructions.
type Cancelled struct {
	Operation Operation
	Reason    string
}

func (Cancelled) State() WizardState { return StateCancelled }

// Rejected is a terminal, backend-driven exit.
type Rejected struct {
	Operation Operation
}

func (Rejected) State() WizardState { return StateRejected }

// Expired is a terminal exit driven by the backend's expiry event.
type Expired struct {
	Operation Operation
}

func (Expired) State() WizardState { return StateExpired }

// RemainingSeconds is the displayed countdown for an operation created
// at createdAt: max(0, window - elapsed). Anchored to the server
// timestamp so a page reload does not restart the clock.
func RemainingSeconds(createdAt, now time.Time) int64 {
	remaining := int64(TransferWindow.Seconds()) - int64(now.Sub(createdAt).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ValidateConfiguration guards the Configuring -> AwaitingConfirmation
// transition. Each failing condition independently blocks the
// transition with its own message.
func ValidateConfiguration(c Configuring) error {
	if !c.Direction.Valid() {
		return &ErrValidation{Field: "direction", Message: "trade direction is required"}
	}
	if c.AmountIn.LessThanOrEqual(decimal.Zero) {
		return &ErrValidation{Field: "amount", Message: "enter an amount greater than zero"}
	}
	if c.Quote == nil {
		return &ErrValidation{Field: "quote", Message: "counter-amount has not been computed"}
	}
	if c.SourceAccountID == "" {
		return &ErrValidation{Field: "sourceAccount", Message: "select the account you will send from"}
	}
	if c.DestinationAccountID == "" {
		return &ErrValidation{Field: "destinationAccount", Message: "select the account you will receive into"}
	}
	if !c.OwnershipConfirmed {
		return &ErrValidation{Field: "ownership", Message: "confirm that both accounts belong to you"}
	}
	return nil
}

// ValidateProofSubmission guards proof uploads: at least one file or a
// voucher code (both may be supplied), and never more than
// MaxProofFiles files.
func ValidateProofSubmission(fileCount int, voucherCode string) error {
	if fileCount == 0 && voucherCode == "" {
		return &ErrValidation{Field: "proof", Message: "attach a transfer receipt or enter a voucher code"}
	}
	if fileCount > MaxProofFiles {
		return &ErrValidation{Field: "files", Message: "at most 4 files can be attached"}
	}
	return nil
}

// ValidateCancelReason guards the cancel path: a free-text reason is
// required.
func ValidateCancelReason(reason string) error {
	if reason == "" {
		return &ErrValidation{Field: "reason", Message: "a cancellation reason is required"}
	}
	return nil
}
