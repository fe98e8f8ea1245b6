package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tannerhall/mantrap/internal/models"
)

// newTestLogger returns a logger that discards output
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockProfileRepo is a mock implementation of ProfileRepository
type mockProfileRepo struct {
	CreateFunc             func(ctx context.Context, userID uuid.UUID, secretKey string) (*models.TwoFactorProfile, error)
	GetByUserIDFunc        func(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error)
	GetEnabledByUserIDFunc func(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error)
	UpdateSecretFunc       func(ctx context.Context, profileID uuid.UUID, secretKey string) error
	SetEnabledFunc         func(ctx context.Context, profileID uuid.UUID, enabled bool) error
	UpdateLastUsedAtFunc   func(ctx context.Context, profileID uuid.UUID) error
	DeleteFunc             func(ctx context.Context, profileID uuid.UUID) error
}

func (m *mockProfileRepo) Create(ctx context.Context, userID uuid.UUID, secretKey string) (*models.TwoFactorProfile, error) {
	return m.CreateFunc(ctx, userID, secretKey)
}

func (m *mockProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error) {
	return m.GetByUserIDFunc(ctx, userID)
}

func (m *mockProfileRepo) GetEnabledByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error) {
	return m.GetEnabledByUserIDFunc(ctx, userID)
}

func (m *mockProfileRepo) UpdateSecret(ctx context.Context, profileID uuid.UUID, secretKey string) error {
	return m.UpdateSecretFunc(ctx, profileID, secretKey)
}

func (m *mockProfileRepo) SetEnabled(ctx context.Context, profileID uuid.UUID, enabled bool) error {
	return m.SetEnabledFunc(ctx, profileID, enabled)
}

func (m *mockProfileRepo) UpdateLastUsedAt(ctx context.Context, profileID uuid.UUID) error {
	if m.UpdateLastUsedAtFunc == nil {
		return nil
	}
	return m.UpdateLastUsedAtFunc(ctx, profileID)
}

func (m *mockProfileRepo) Delete(ctx context.Context, profileID uuid.UUID) error {
	return m.DeleteFunc(ctx, profileID)
}

// mockBackupRepo is a mock implementation of BackupCodeRepository
type mockBackupRepo struct {
	ReplaceBatchFunc      func(ctx context.Context, profileID uuid.UUID, codes []string) error
	ConsumeFunc           func(ctx context.Context, profileID uuid.UUID, code string) error
	CountUnusedFunc       func(ctx context.Context, profileID uuid.UUID) (int, error)
	DeleteByProfileIDFunc func(ctx context.Context, profileID uuid.UUID) error
}

func (m *mockBackupRepo) ReplaceBatch(ctx context.Context, profileID uuid.UUID, codes []string) error {
	return m.ReplaceBatchFunc(ctx, profileID, codes)
}

func (m *mockBackupRepo) Consume(ctx context.Context, profileID uuid.UUID, code string) error {
	return m.ConsumeFunc(ctx, profileID, code)
}

func (m *mockBackupRepo) CountUnused(ctx context.Context, profileID uuid.UUID) (int, error) {
	if m.CountUnusedFunc == nil {
		return 10, nil
	}
	return m.CountUnusedFunc(ctx, profileID)
}

func (m *mockBackupRepo) DeleteByProfileID(ctx context.Context, profileID uuid.UUID) error {
	return m.DeleteByProfileIDFunc(ctx, profileID)
}

// mockEmailCodeRepo is a mock implementation of EmailCodeRepository
type mockEmailCodeRepo struct {
	CreateFunc                 func(ctx context.Context, code *models.EmailVerificationCode) error
	GetUnusedByUserAndCodeFunc func(ctx context.Context, userID uuid.UUID, code string) (*models.EmailVerificationCode, error)
	GetByTokenHashFunc         func(ctx context.Context, tokenHash string) (*models.EmailVerificationCode, error)
	ConsumeFunc                func(ctx context.Context, id uuid.UUID) error
	DeleteByUserIDFunc         func(ctx context.Context, userID uuid.UUID) error
}

func (m *mockEmailCodeRepo) Create(ctx context.Context, code *models.EmailVerificationCode) error {
	return m.CreateFunc(ctx, code)
}

func (m *mockEmailCodeRepo) GetUnusedByUserAndCode(ctx context.Context, userID uuid.UUID, code string) (*models.EmailVerificationCode, error) {
	if m.GetUnusedByUserAndCodeFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetUnusedByUserAndCodeFunc(ctx, userID, code)
}

func (m *mockEmailCodeRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationCode, error) {
	return m.GetByTokenHashFunc(ctx, tokenHash)
}

func (m *mockEmailCodeRepo) Consume(ctx context.Context, id uuid.UUID) error {
	return m.ConsumeFunc(ctx, id)
}

func (m *mockEmailCodeRepo) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	return m.DeleteByUserIDFunc(ctx, userID)
}

// mockAuditRepo is a mock implementation of AuditLogRepository
type mockAuditRepo struct {
	CreateFunc       func(ctx context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error)
	RecentByUserFunc func(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLogEntry, error)

	entries []*models.AuditLogEntry
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *mockAuditRepo) RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLogEntry, error) {
	return m.RecentByUserFunc(ctx, userID, limit)
}

// lastEntry returns the most recently recorded audit entry, or nil
func (m *mockAuditRepo) lastEntry() *models.AuditLogEntry {
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

// mockEmailSender is a mock implementation of EmailSender
type mockEmailSender struct {
	SendChallengeFunc func(ctx context.Context, email, code, magicLink string, expiresAt time.Time) error
}

func (m *mockEmailSender) SendChallenge(ctx context.Context, email, code, magicLink string, expiresAt time.Time) error {
	if m.SendChallengeFunc == nil {
		return nil
	}
	return m.SendChallengeFunc(ctx, email, code, magicLink, expiresAt)
}

// defaultTestConfig mirrors production defaults
func defaultTestConfig() TwoFactorConfig {
	return TwoFactorConfig{
		Issuer:          "News Portal",
		Digits:          6,
		Period:          30,
		VerifyWindow:    1,
		SetupWindow:     2,
		SecretLength:    20,
		BackupCodeCount: 10,
	}
}
