package service

import (
	"context"
	"sync"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/infra/timeutil"
	"github.com/cambioseguro/portal-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var kycTracer = otel.Tracer("service/kyc")

// noticeTTL is how long the one-time "documents approved" notice stays
// visible before auto-dismissing.
const noticeTTL = 10 * time.Second

// KYCService submits identity documents and watches the review status.
type KYCService struct {
	uploader     port.KYCBackend
	profiles     port.AuthBackend
	pollInterval time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	pollers map[string]*timeutil.Scope
	notices map[string]*domain.KYCNotice
}

// NewKYCService creates the KYC service.
func NewKYCService(uploader port.KYCBackend, profiles port.AuthBackend, pollInterval time.Duration, logger *zap.Logger) *KYCService {
	return &KYCService{
		uploader:     uploader,
		profiles:     profiles,
		pollInterval: pollInterval,
		logger:       logger,
		pollers:      make(map[string]*timeutil.Scope),
		notices:      make(map[string]*domain.KYCNotice),
	}
}

// SubmitDocuments validates and uploads the identity documents as one
// multipart request. Front and back images are always required; the
// business-registration document only for business/tax-ID profiles.
// On success the profile is re-fetched and, while the review is
// pending, a background poller watches for approval. On failure the
// backend message is returned and nothing else changes, so the user
// can resubmit the same files.
func (s *KYCService) SubmitDocuments(ctx context.Context, clientID string, front, back, business *domain.DocumentUpload) (*domain.Profile, error) {
	ctx, span := kycTracer.Start(ctx, "KYCService.SubmitDocuments")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	if front == nil || len(front.Content) == 0 {
		return nil, &domain.ErrValidation{Field: "documentFront", Message: "front image is required"}
	}
	if back == nil || len(back.Content) == 0 {
		return nil, &domain.ErrValidation{Field: "documentBack", Message: "back image is required"}
	}

	profile, err := s.profiles.GetProfile(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if profile.RequiresBusinessDocument() && (business == nil || len(business.Content) == 0) {
		return nil, &domain.ErrValidation{Field: "businessDocument", Message: "business registration document is required"}
	}

	files := []domain.DocumentUpload{*front, *back}
	if business != nil && len(business.Content) > 0 {
		files = append(files, *business)
	}

	if err := s.uploader.UploadDocuments(ctx, clientID, files); err != nil {
		return nil, err
	}

	s.logger.Info("kyc: documents submitted",
		zap.String("client_id", clientID),
		zap.Int("files", len(files)),
	)

	updated, err := s.profiles.GetProfile(ctx, clientID)
	if err != nil {
		// Upload succeeded; a failed re-fetch only delays the status.
		s.logger.Warn("kyc: profile re-fetch failed", zap.Error(err))
		updated = profile
	}

	if updated.Verification == domain.VerificationSubmitted {
		s.startPoller(clientID)
	}
	return updated, nil
}

// Status returns the customer's profile with its verification state.
func (s *KYCService) Status(ctx context.Context, clientID string) (*domain.Profile, error) {
	ctx, span := kycTracer.Start(ctx, "KYCService.Status")
	defer span.End()

	return s.profiles.GetProfile(ctx, clientID)
}

// Notice returns the pending "documents approved" notice, if one is
// still live.
func (s *KYCService) Notice(clientID string) (*domain.KYCNotice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notices[clientID]
	return n, ok
}

// HandleStreamEvent reacts to the backend's documents_approved push,
// short-circuiting the poller.
func (s *KYCService) HandleStreamEvent(ev port.StreamEvent) {
	if ev.Kind != port.EventDocumentsApproved || ev.ClientID == "" {
		return
	}
	s.markApproved(ev.ClientID)
}

// startPoller re-checks the profile every pollInterval while the
// account is awaiting review, stopping at full verification. Starting
// twice for the same client is a no-op.
func (s *KYCService) startPoller(clientID string) {
	s.mu.Lock()
	if _, running := s.pollers[clientID]; running {
		s.mu.Unlock()
		return
	}
	scope := timeutil.NewScope()
	s.pollers[clientID] = scope
	s.mu.Unlock()

	s.logger.Info("kyc: status poller started", zap.String("client_id", clientID))

	scope.Every(s.pollInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
		defer cancel()

		profile, err := s.profiles.GetProfile(ctx, clientID)
		if err != nil {
			s.logger.Warn("kyc: status poll failed",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
			return
		}

		switch profile.Verification {
		case domain.VerificationApproved:
			s.markApproved(clientID)
		case domain.VerificationRejected:
			s.stopPoller(clientID)
		}
	})
}

func (s *KYCService) stopPoller(clientID string) {
	s.mu.Lock()
	scope, ok := s.pollers[clientID]
	if ok {
		delete(s.pollers, clientID)
	}
	s.mu.Unlock()
	if ok {
		scope.Cancel()
	}
}

// markApproved stops the poller and arms the one-time notice with its
// auto-dismiss timer.
func (s *KYCService) markApproved(clientID string) {
	s.stopPoller(clientID)

	s.mu.Lock()
	if _, already := s.notices[clientID]; already {
		s.mu.Unlock()
		return
	}
	s.notices[clientID] = &domain.KYCNotice{
		Message:   "your documents were approved",
		CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	s.logger.Info("kyc: documents approved", zap.String("client_id", clientID))

	time.AfterFunc(noticeTTL, func() {
		s.mu.Lock()
		delete(s.notices, clientID)
		s.mu.Unlock()
	})
}

// Close stops every running poller.
func (s *KYCService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, scope := range s.pollers {
		scope.Cancel()
		delete(s.pollers, id)
	}
}
