package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/domain"
	"github.com/cambioseguro/portal-bff-go/internal/port"
	"github.com/cambioseguro/portal-bff-go/internal/service"

	"go.uber.org/zap"
)

type mockKYCBackend struct {
	mu      sync.Mutex
	uploads [][]domain.DocumentUpload
	err     error
}

func (m *mockKYCBackend) UploadDocuments(_ context.Context, _ string, files []domain.DocumentUpload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.uploads = append(m.uploads, files)
	return nil
}

type mockProfileBackend struct {
	mu      sync.Mutex
	profile domain.Profile
	err     error
}

func (m *mockProfileBackend) Login(_ context.Context, _ *domain.LoginRequest) (*domain.Profile, error) {
	return m.get()
}

func (m *mockProfileBackend) Register(_ context.Context, _ *domain.RegisterRequest) (*domain.Profile, error) {
	return m.get()
}

func (m *mockProfileBackend) GetProfile(_ context.Context, _ string) (*domain.Profile, error) {
	return m.get()
}

func (m *mockProfileBackend) get() (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p := m.profile
	return &p, nil
}

func (m *mockProfileBackend) setVerification(v domain.VerificationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile.Verification = v
}

func upload(name string) *domain.DocumentUpload {
	return &domain.DocumentUpload{FieldName: name, FileName: name + ".jpg", Content: []byte("img")}
}

func TestKYCSubmit_RequiresFrontAndBack(t *testing.T) {
	uploader := &mockKYCBackend{}
	profiles := &mockProfileBackend{profile: domain.Profile{ClientID: "client-1", DocumentType: domain.DocumentDNI}}
	svc := service.NewKYCService(uploader, profiles, time.Hour, zap.NewNop())
	defer svc.Close()

	if _, err := svc.SubmitDocuments(context.Background(), "client-1", nil, upload("back"), nil); err == nil {
		t.Error("missing front image must be rejected")
	}
	if _, err := svc.SubmitDocuments(context.Background(), "client-1", upload("front"), nil, nil); err == nil {
		t.Error("missing back image must be rejected")
	}
	if len(uploader.uploads) != 0 {
		t.Errorf("invalid submissions must not reach the backend, got %d", len(uploader.uploads))
	}
}

func TestKYCSubmit_BusinessDocumentOnlyForRUC(t *testing.T) {
	uploader := &mockKYCBackend{}
	profiles := &mockProfileBackend{profile: domain.Profile{ClientID: "client-1", DocumentType: domain.DocumentRUC}}
	svc := service.NewKYCService(uploader, profiles, time.Hour, zap.NewNop())
	defer svc.Close()

	if _, err := svc.SubmitDocuments(context.Background(), "client-1", upload("front"), upload("back"), nil); err == nil {
		t.Error("RUC profile without business document must be rejected")
	}

	profile, err := svc.SubmitDocuments(context.Background(), "client-1", upload("front"), upload("back"), upload("business"))
	if err != nil {
		t.Fatalf("complete RUC submission failed: %v", err)
	}
	if profile == nil {
		t.Fatal("expected the refreshed profile")
	}
	if len(uploader.uploads) != 1 || len(uploader.uploads[0]) != 3 {
		t.Errorf("expected one upload with 3 files, got %+v", uploader.uploads)
	}
}

func TestKYCSubmit_DNIProfileSkipsBusinessDocument(t *testing.T) {
	uploader := &mockKYCBackend{}
	profiles := &mockProfileBackend{profile: domain.Profile{ClientID: "client-1", DocumentType: domain.DocumentDNI}}
	svc := service.NewKYCService(uploader, profiles, time.Hour, zap.NewNop())
	defer svc.Close()

	if _, err := svc.SubmitDocuments(context.Background(), "client-1", upload("front"), upload("back"), nil); err != nil {
		t.Fatalf("DNI submission failed: %v", err)
	}
	if len(uploader.uploads) != 1 || len(uploader.uploads[0]) != 2 {
		t.Errorf("expected one upload with 2 files, got %+v", uploader.uploads)
	}
}

func TestKYCSubmit_FailureKeepsNothing(t *testing.T) {
	uploader := &mockKYCBackend{err: &domain.ErrBackend{Status: 422, Message: "documento ilegible"}}
	profiles := &mockProfileBackend{profile: domain.Profile{ClientID: "client-1", DocumentType: domain.DocumentDNI}}
	svc := service.NewKYCService(uploader, profiles, time.Hour, zap.NewNop())
	defer svc.Close()

	_, err := svc.SubmitDocuments(context.Background(), "client-1", upload("front"), upload("back"), nil)
	if err == nil {
		t.Fatal("expected the backend rejection to surface")
	}
	if _, ok := svc.Notice("client-1"); ok {
		t.Error("no notice expected after a failed submission")
	}
}

func TestKYCPoller_DetectsApproval(t *testing.T) {
	uploader := &mockKYCBackend{}
	profiles := &mockProfileBackend{profile: domain.Profile{
		ClientID:     "client-1",
		DocumentType: domain.DocumentDNI,
		Verification: domain.VerificationSubmitted,
	}}
	svc := service.NewKYCService(uploader, profiles, 10*time.Millisecond, zap.NewNop())
	defer svc.Close()

	if _, err := svc.SubmitDocuments(context.Background(), "client-1", upload("front"), upload("back"), nil); err != nil {
		t.Fatalf("submission failed: %v", err)
	}

	profiles.setVerification(domain.VerificationApproved)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := svc.Notice("client-1"); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("poller never surfaced the approval notice")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKYCStreamEvent_ShortCircuitsPoller(t *testing.T) {
	uploader := &mockKYCBackend{}
	profiles := &mockProfileBackend{profile: domain.Profile{ClientID: "client-1", DocumentType: domain.DocumentDNI}}
	svc := service.NewKYCService(uploader, profiles, time.Hour, zap.NewNop())
	defer svc.Close()

	svc.HandleStreamEvent(port.StreamEvent{Kind: port.EventDocumentsApproved, ClientID: "client-1"})

	if _, ok := svc.Notice("client-1"); !ok {
		t.Fatal("expected the approval notice after the push event")
	}

	// A duplicate event must not reset the notice.
	first, _ := svc.Notice("client-1")
	svc.HandleStreamEvent(port.StreamEvent{Kind: port.EventDocumentsApproved, ClientID: "client-1"})
	second, _ := svc.Notice("client-1")
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Error("duplicate approval events must be idempotent")
	}
}
