package service

import (
	"context"
	"sync"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/infra/observability"
	"github.com/cambioseguro/portal-bff-go/internal/infra/timeutil"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var wizardTracer = otel.Tracer("service/wizard")

// proofAdvanceDelay holds the session at TransferInstructions visually
// after a successful proof upload, letting the progress animation
// finish before the stage advances.
const proofAdvanceDelay = 2 * time.Second

// session is one live wizard run. All timers hang off its scope, which
// is cancelled when the session ends, so navigation away cannot leak
// intervals.
type session struct {
	id       string
	clientID string

	mu    sync.Mutex
	stage domain.Stage
	scope *timeutil.Scope
}

// WizardService drives the multi-step operation flow: configure a
// trade, confirm it, wire the funds, submit proof. At most one active
// operation is tracked per session.
type WizardService struct {
	ops        port.OperationsBackend
	rates      *RateService
	referrals  *ReferralService
	metrics    *observability.Metrics
	logger     *zap.Logger
	sessionTTL time.Duration

	// advanceDelay is proofAdvanceDelay, shortened in tests.
	advanceDelay time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewWizardService creates the wizard service.
func NewWizardService(ops port.OperationsBackend, rates *RateService, referrals *ReferralService, sessionTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *WizardService {
	return &WizardService{
		ops:          ops,
		rates:        rates,
		referrals:    referrals,
		metrics:      metrics,
		logger:       logger,
		sessionTTL:   sessionTTL,
		advanceDelay: proofAdvanceDelay,
		now:          time.Now,
		sessions:     make(map[string]*session),
	}
}

// ConfigureRequest updates the configuring stage. Nil pointers leave
// the corresponding field untouched.
type ConfigureRequest struct {
	Direction            *domain.Direction `json:"direction,omitempty"`
	Amount               *string           `json:"amount,omitempty"`
	SourceAccountID      *string           `json:"sourceAccountId,omitempty"`
	DestinationAccountID *string           `json:"destinationAccountId,omitempty"`
	OwnershipConfirmed   *bool             `json:"ownershipConfirmed,omitempty"`
}

// SessionView is the JSON shape handlers return for a session.
type SessionView struct {
	SessionID string             `json:"sessionId"`
	ClientID  string             `json:"clientId"`
	State     domain.WizardState `json:"state"`

	Direction          domain.Direction         `json:"direction,omitempty"`
	Amount             string                   `json:"amount,omitempty"`
	Quote              *domain.Quote            `json:"quote,omitempty"`
	SourceAccountID    string                   `json:"sourceAccountId,omitempty"`
	DestAccountID      string                   `json:"destinationAccountId,omitempty"`
	OwnershipConfirmed bool                     `json:"ownershipConfirmed,omitempty"`
	Discount           *domain.ReferralDiscount `json:"discount,omitempty"`

	Operation        *domain.Operation `json:"operation,omitempty"`
	CountdownSeconds int64             `json:"countdownSeconds,omitempty"`
	ProofAllowed     bool              `json:"proofAllowed,omitempty"`
	CancelReason     string            `json:"cancelReason,omitempty"`
}

// StartSession opens a new wizard run at the configuring stage.
func (s *WizardService) StartSession(ctx context.Context, clientID string) *SessionView {
	_, span := wizardTracer.Start(ctx, "WizardService.StartSession")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	sess := &session{
		id:       uuid.NewString(),
		clientID: clientID,
		stage:    domain.Configuring{},
		scope:    timeutil.NewScope(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	// Abandoned sessions evict themselves.
	sess.scope.AfterFunc(s.sessionTTL, func() {
		s.EndSession(sess.id)
	})

	s.logger.Info("wizard: session started",
		zap.String("session_id", sess.id),
		zap.String("client_id", clientID),
	)
	return s.view(sess)
}

// GetSession returns the current view of a session.
func (s *WizardService) GetSession(sessionID string) (*SessionView, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// EndSession tears a session down, cancelling its timers. Called on
// navigation away, successful completion, or TTL expiry.
func (s *WizardService) EndSession(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if ok {
		sess.scope.Cancel()
		s.logger.Info("wizard: session ended", zap.String("session_id", sessionID))
	}
}

// Configure updates the configuring stage and recomputes the quote.
// The quote is recomputed on every change to amount, direction, rate
// or discount; identical inputs always produce identical output.
func (s *WizardService) Configure(ctx context.Context, sessionID string, req *ConfigureRequest) (*SessionView, error) {
	ctx, span := wizardTracer.Start(ctx, "WizardService.Configure")
	defer span.End()

	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	cfg, ok := sess.stage.(domain.Configuring)
	if !ok {
		return nil, &domain.ErrInvalidTransition{From: sess.stage.State(), Action: "configure"}
	}

	if req.Direction != nil {
		if !req.Direction.Valid() {
			return nil, &domain.ErrValidation{Field: "direction", Message: "must be buy or sell"}
		}
		cfg.Direction = *req.Direction
		// Accounts picked for the old direction no longer match the
		// required currencies.
		cfg.SourceAccountID = ""
		cfg.DestinationAccountID = ""
	}
	if req.Amount != nil {
		amount, parseErr := decimal.NewFromString(*req.Amount)
		if parseErr != nil {
			return nil, &domain.ErrValidation{Field: "amount", Message: "amount must be a number"}
		}
		cfg.AmountIn = amount
	}
	if req.SourceAccountID != nil {
		cfg.SourceAccountID = *req.SourceAccountID
	}
	if req.DestinationAccountID != nil {
		cfg.DestinationAccountID = *req.DestinationAccountID
	}
	if req.OwnershipConfirmed != nil {
		cfg.OwnershipConfirmed = *req.OwnershipConfirmed
	}

	s.recomputeQuote(&cfg)
	sess.stage = cfg
	return s.viewLocked(sess), nil
}

// ApplyCoupon validates a referral/coupon code for the session. A code
// of the wrong length is rejected locally; a backend failure stores an
// invalid result with a retry message.
func (s *WizardService) ApplyCoupon(ctx context.Context, sessionID, code string) (*SessionView, error) {
	ctx, span := wizardTracer.Start(ctx, "WizardService.ApplyCoupon")
	defer span.End()

	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	discount, err := s.referrals.Validate(ctx, code, sess.clientID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	cfg, ok := sess.stage.(domain.Configuring)
	if !ok {
		return nil, &domain.ErrInvalidTransition{From: sess.stage.State(), Action: "apply coupon"}
	}

	cfg.Discount = discount
	s.recomputeQuote(&cfg)
	sess.stage = cfg
	return s.viewLocked(sess), nil
}

// ClearCoupon drops the discount: the code field was edited or the
// coupon checkbox unchecked.
func (s *WizardService) ClearCoupon(sessionID string) (*SessionView, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	cfg, ok := sess.stage.(domain.Configuring)
	if !ok {
		return nil, &domain.ErrInvalidTransition{From: sess.stage.State(), Action: "clear coupon"}
	}

	cfg.Discount = nil
	s.recomputeQuote(&cfg)
	sess.stage = cfg
	return s.viewLocked(sess), nil
}

// Review guards Configuring -> AwaitingConfirmation. Each failing
// condition independently blocks the transition with its own message.
func (s *WizardService) Review(ctx context.Context, sessionID string) (*SessionView, error) {
	_, span := wizardTracer.Start(ctx, "WizardService.Review")
	defer span.End()

	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	cfg, ok := sess.stage.(domain.Configuring)
	if !ok {
		return nil, &domain.ErrInvalidTransition{From: sess.stage.State(), Action: "review"}
	}
	if err := domain.ValidateConfiguration(cfg); err != nil {
		return nil, err
	}

	sess.stage = domain.AwaitingConfirmation{Config: cfg}
	s.metrics.IncrWizardTransition(string(domain.StateAwaitingConfirmation))
	return s.viewLocked(sess), nil
}

// BackToConfigure returns from the review screen to editing.
func (s *WizardService) BackToConfigure(sessionID string) (*SessionView, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	awaiting, ok := sess.stage.(domain.AwaitingConfirmation)
	if !ok {
		return nil, &domain.ErrInvalidTransition{From: sess.stage.State(), Action: "edit"}
	}

	sess.stage = awaiting.Config
	return s.viewLocked(sess), nil
}

// Confirm fires the create-operation call. On success the session
// enters TransferInstructions with a countdown anchored to the
// operation's server-side creation time, and the coupon state resets
// (one use per submission). On failure the session stays at
// AwaitingConfirmation and the backend's message is surfaced verbatim.
func (s *WizardService) Confirm(ctx context.Context, sessionID string) (*SessionView, error) {
	ctx, span := wizardTracer.Start(ctx, "WizardService.Confirm")
	defer span.End()

	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	awaiting, ok := sess.stage.(domain.AwaitingConfirmation)
	if !ok {
		sess.mu.Unlock()
		return nil, &domain.ErrInvalidTransition{From: sess.stage.State(), Action: "confirm"}
	}
	cfg := awaiting.Config
	sess.mu.Unlock()

	req := &port.CreateOperationRequest{
		Direction:            cfg.Direction,
		AmountIn:             cfg.AmountIn.String(),
		SourceAccountID:      cfg.SourceAccountID,
		DestinationAccountID: cfg.DestinationAccountID,
	}
	if cfg.Quote != nil {
		req.AmountOut = cfg.Quote.AmountOut.String()
		req.RateUsed = cfg.Quote.RateUsed.String()
	}
	if cfg.Discount != nil && cfg.Discount.IsValid {
		req.CouponCode = cfg.Discount.Code
	}

	// The backend call happens outside the session lock; the session
	// is re-checked before the transition lands.
	op, err := s.ops.CreateOperation(ctx, sess.clientID, req)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, stillAwaiting := sess.stage.(domain.AwaitingConfirmation); !stillAwaiting {
		return nil, &domain.ErrConflict{Message: "session changed while creating the operation"}
	}

	sess.stage = domain.TransferInstructions{Operation: *op}
	s.metrics.IncrOperationCreated()
	s.metrics.IncrWizardTransition(string(domain.StateTransferInstructions))
	s.logger.Info("wizard: operation created",
		zap.String("session_id", sess.id),
		zap.String("operation_id", op.ID),
		zap.String("direction", string(op.Direction)),
	)
	return s.viewLocked(sess), nil
}

// Cancel exits TransferInstructions. A non-empty reason is required
// locally; the cancel endpoint is called exactly once per accepted
// request. On failure the session keeps its state and the error is
// surfaced.
func (s *WizardService) Cancel(ctx context.Context, sessionID, reason string) (*SessionView, error) {
	ctx, span := wizardTracer.Start(ctx, "WizardService.Cancel")
	defer span.End()

	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateCancelReason(reason); err != nil {
		return nil, err
	}

	sess.mu.Lock()
	transfer, ok := sess.stage.(domain.TransferInstructions)
	if !ok {
		sess.mu.Unlock()
		return nil, &domain.ErrInvalidTransition{From: sess.stage.State(), Action: "cancel"}
	}
	op := transfer.Operation
	sess.mu.Unlock()

	if err := s.ops.CancelOperation(ctx, op.ID, reason); err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.stage = domain.Cancelled{Operation: op, Reason: reason}
	s.metrics.IncrWizardTransition(string(domain.StateCancelled))
	s.logger.Info("wizard: operation cancelled",
		zap.String("session_id", sess.id),
		zap.String("operation_id", op.ID),
	)
	return s.viewLocked(sess), nil
}

// SubmitProof uploads proof-of-transfer files and/or a voucher code.
// Validation (at least one of the two, at most 4 files) happens before
// any network call. Once the countdown has reached zero new proof is
// refused, but cancel remains available. On success the session holds
// at ProofSubmitted for proofAdvanceDelay, then advances to
// SettlementPending.
func (s *WizardService) SubmitProof(ctx context.Context, sessionID, voucherCode string, files []domain.DocumentUpload) (*SessionView, error) {
	ctx, span := wizardTracer.Start(ctx, "WizardService.SubmitProof")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(files)))

	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateProofSubmission(len(files), voucherCode); err != nil {
		return nil, err
	}

	sess.mu.Lock()
	transfer, ok := sess.stage.(domain.TransferInstructions)
	if !ok {
		sess.mu.Unlock()
		return nil, &domain.ErrInvalidTransition{From: sess.stage.State(), Action: "submit proof"}
	}
	op := transfer.Operation
	if domain.RemainingSeconds(op.CreatedAt, s.now()) == 0 {
		sess.mu.Unlock()
		return nil, &domain.ErrExpired{OperationID: op.ID}
	}
	sess.mu.Unlock()

	if err := s.ops.SubmitProof(ctx, op.ID, voucherCode, files); err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.stage = domain.ProofSubmitted{Operation: op}
	s.metrics.IncrWizardTransition(string(domain.StateProofSubmitted))

	sess.scope.AfterFunc(s.advanceDelay, func() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if proof, ok := sess.stage.(domain.ProofSubmitted); ok {
			sess.stage = domain.SettlementPending{Operation: proof.Operation}
			s.metrics.IncrWizardTransition(string(domain.StateSettlementPending))
		}
	})

	return s.viewLocked(sess), nil
}

// Resume opens a wizard session directly at TransferInstructions for
// an existing operation. The countdown is reconstructed from the
// record's creation time. A record that is no longer pending aborts
// the resume; the caller redirects to the summary view.
func (s *WizardService) Resume(ctx context.Context, clientID, operationID string) (*SessionView, error) {
	ctx, span := wizardTracer.Start(ctx, "WizardService.Resume")
	defer span.End()
	span.SetAttributes(attribute.String("operation.id", operationID))

	op, err := s.ops.GetOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op.State != domain.OperationPending && op.State != domain.OperationTransferPending {
		return nil, &domain.ErrConflict{Message: "operation is no longer pending"}
	}

	sess := &session{
		id:       uuid.NewString(),
		clientID: clientID,
		stage:    domain.TransferInstructions{Operation: *op},
		scope:    timeutil.NewScope(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.scope.AfterFunc(s.sessionTTL, func() {
		s.EndSession(sess.id)
	})

	s.logger.Info("wizard: session resumed",
		zap.String("session_id", sess.id),
		zap.String("operation_id", operationID),
	)
	return s.view(sess), nil
}

// OnRateUpdate recomputes quotes for sessions still configuring. Wired
// to the rate feed so displayed amounts track every accepted update.
func (s *WizardService) OnRateUpdate(rate domain.ExchangeRate) {
	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		if cfg, ok := sess.stage.(domain.Configuring); ok {
			s.recomputeQuoteAt(&cfg, rate)
			sess.stage = cfg
		}
		sess.mu.Unlock()
	}
}

// HandleStreamEvent applies backend-driven lifecycle events. The
// operation_expired push is authoritative: it moves the matching
// session to Expired immediately, regardless of the local countdown.
func (s *WizardService) HandleStreamEvent(ev port.StreamEvent) {
	if ev.Kind != port.EventOperationExpired && ev.Kind != port.EventOperationUpdated {
		return
	}

	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		op, ok := currentOperation(sess.stage)
		if !ok || op.ID != ev.OperationID {
			sess.mu.Unlock()
			continue
		}

		switch ev.Kind {
		case port.EventOperationExpired:
			sess.stage = domain.Expired{Operation: op}
			s.metrics.IncrWizardTransition(string(domain.StateExpired))
			s.logger.Info("wizard: operation expired by backend",
				zap.String("session_id", sess.id),
				zap.String("operation_id", op.ID),
			)
		case port.EventOperationUpdated:
			if ev.Operation == nil {
				break
			}
			switch ev.Operation.State {
			case domain.OperationRejected:
				sess.stage = domain.Rejected{Operation: *ev.Operation}
				s.metrics.IncrWizardTransition(string(domain.StateRejected))
			case domain.OperationCancelled:
				sess.stage = domain.Cancelled{Operation: *ev.Operation}
			default:
				sess.stage = replaceOperation(sess.stage, *ev.Operation)
			}
		}
		sess.mu.Unlock()
	}
}

// ---- internals ----

func (s *WizardService) find(sessionID string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "wizard session", ID: sessionID}
	}
	return sess, nil
}

// recomputeQuote refreshes cfg.Quote at the current feed rate. A
// missing rate or zero amount leaves the quote empty.
func (s *WizardService) recomputeQuote(cfg *domain.Configuring) {
	current := s.rates.Current()
	if current.Rate == nil {
		cfg.Quote = nil
		return
	}
	s.recomputeQuoteAt(cfg, *current.Rate)
}

func (s *WizardService) recomputeQuoteAt(cfg *domain.Configuring, rate domain.ExchangeRate) {
	if !cfg.Direction.Valid() || cfg.AmountIn.LessThanOrEqual(decimal.Zero) {
		cfg.Quote = nil
		return
	}

	discount := decimal.Zero
	if cfg.Discount != nil && cfg.Discount.IsValid {
		discount = cfg.Discount.PipAdjustment
	}

	quote, err := domain.ComputeQuote(rate, cfg.Direction, cfg.AmountIn, discount)
	if err != nil {
		cfg.Quote = nil
		return
	}
	cfg.Quote = &quote
}

func currentOperation(stage domain.Stage) (domain.Operation, bool) {
	switch v := stage.(type) {
	case domain.TransferInstructions:
		return v.Operation, true
	case domain.ProofSubmitted:
		return v.Operation, true
	case domain.SettlementPending:
		return v.Operation, true
	default:
		return domain.Operation{}, false
	}
}

func replaceOperation(stage domain.Stage, op domain.Operation) domain.Stage {
	switch stage.(type) {
	case domain.TransferInstructions:
		return domain.TransferInstructions{Operation: op}
	case domain.ProofSubmitted:
		return domain.ProofSubmitted{Operation: op}
	case domain.SettlementPending:
		return domain.SettlementPending{Operation: op}
	default:
		return stage
	}
}

func (s *WizardService) view(sess *session) *SessionView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess)
}

// viewLocked builds the JSON view. Caller holds sess.mu.
func (s *WizardService) viewLocked(sess *session) *SessionView {
	v := &SessionView{
		SessionID: sess.id,
		ClientID:  sess.clientID,
		State:     sess.stage.State(),
	}

	switch stage := sess.stage.(type) {
	case domain.Configuring:
		fillConfig(v, stage)
	case domain.AwaitingConfirmation:
		fillConfig(v, stage.Config)
	case domain.TransferInstructions:
		v.Operation = &stage.Operation
		v.CountdownSeconds = domain.RemainingSeconds(stage.Operation.CreatedAt, s.now())
		v.ProofAllowed = v.CountdownSeconds > 0
	case domain.ProofSubmitted:
		v.Operation = &stage.Operation
	case domain.SettlementPending:
		v.Operation = &stage.Operation
	case domain.Cancelled:
		v.Operation = &stage.Operation
		v.CancelReason = stage.Reason
	case domain.Rejected:
		v.Operation = &stage.Operation
	case domain.Expired:
		v.Operation = &stage.Operation
	}
	return v
}

func fillConfig(v *SessionView, cfg domain.Configuring) {
	v.Direction = cfg.Direction
	if cfg.AmountIn.GreaterThan(decimal.Zero) {
		v.Amount = cfg.AmountIn.String()
	}
	v.Quote = cfg.Quote
	v.SourceAccountID = cfg.SourceAccountID
	v.DestAccountID = cfg.DestinationAccountID
	v.OwnershipConfirmed = cfg.OwnershipConfirmed
	v.Discount = cfg.Discount
}
