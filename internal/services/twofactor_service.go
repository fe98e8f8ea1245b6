package services

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/tannerhall/mantrap/internal/models"
	"github.com/tannerhall/mantrap/internal/otp"
)

// ProfileRepository defines the persistence interface for two-factor profiles
type ProfileRepository interface {
	Create(ctx context.Context, userID uuid.UUID, secretKey string) (*models.TwoFactorProfile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error)
	GetEnabledByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error)
	UpdateSecret(ctx context.Context, profileID uuid.UUID, secretKey string) error
	SetEnabled(ctx context.Context, profileID uuid.UUID, enabled bool) error
	UpdateLastUsedAt(ctx context.Context, profileID uuid.UUID) error
	Delete(ctx context.Context, profileID uuid.UUID) error
}

// BackupCodeRepository defines the persistence interface for recovery codes
type BackupCodeRepository interface {
	ReplaceBatch(ctx context.Context, profileID uuid.UUID, codes []string) error
	Consume(ctx context.Context, profileID uuid.UUID, code string) error
	CountUnused(ctx context.Context, profileID uuid.UUID) (int, error)
	DeleteByProfileID(ctx context.Context, profileID uuid.UUID) error
}

// TwoFactorConfig holds two-factor verification configuration
type TwoFactorConfig struct {
	Issuer          string
	Digits          int
	Period          int
	VerifyWindow    int
	SetupWindow     int
	SecretLength    int
	BackupCodeCount int
}

// SetupInfo is returned during enrollment so the user can load the secret
// into an authenticator app
type SetupInfo struct {
	Secret          string // Base32, shown once for manual entry
	ProvisioningURI string
	QRCode          string // PNG data URL of the provisioning URI
	Enabled         bool
}

// replaceBatchAttempts bounds retries when a freshly generated backup code
// collides with another profile's code.
const replaceBatchAttempts = 3

// TwoFactorService orchestrates enrollment and verification. A submitted
// credential is classified by shape: recovery codes carry a dash, and a
// bare numeric code is checked against any pending email challenge before
// falling through to TOTP.
type TwoFactorService struct {
	profileRepo ProfileRepository
	backupRepo  BackupCodeRepository
	emailRepo   EmailCodeRepository
	audit       *AuditService
	logger      *slog.Logger
	config      TwoFactorConfig
}

// NewTwoFactorService creates a new TwoFactorService
func NewTwoFactorService(
	profileRepo ProfileRepository,
	backupRepo BackupCodeRepository,
	emailRepo EmailCodeRepository,
	audit *AuditService,
	logger *slog.Logger,
	config TwoFactorConfig,
) *TwoFactorService {
	return &TwoFactorService{
		profileRepo: profileRepo,
		backupRepo:  backupRepo,
		emailRepo:   emailRepo,
		audit:       audit,
		logger:      logger,
		config:      config,
	}
}

// Setup begins enrollment for a user. A fresh secret is generated on every
// call until the profile is verified, so abandoning setup and returning
// later never leaves a half-known secret in play. Setup on an already
// enabled profile is rejected; use RegenerateSecret to re-enroll.
func (s *TwoFactorService) Setup(ctx context.Context, userID uuid.UUID, accountEmail string) (*SetupInfo, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if profile != nil && profile.Enabled {
		return nil, models.ErrAlreadyEnabled
	}

	secret, err := otp.GenerateSecret(s.config.SecretLength)
	if err != nil {
		s.logger.Error("failed to generate secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	secretKey := otp.EncodeBase32(secret)

	if profile == nil {
		profile, err = s.profileRepo.Create(ctx, userID, secretKey)
		if err != nil {
			s.logger.Error("failed to create profile", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	} else {
		if err := s.profileRepo.UpdateSecret(ctx, profile.ID, secretKey); err != nil {
			s.logger.Error("failed to rotate setup secret", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	s.logger.Info("two-factor setup started",
		slog.String("user_id", userID.String()),
		slog.String("profile_id", profile.ID.String()))

	return s.buildSetupInfo(secret, accountEmail, false)
}

// RegenerateSecret rotates the secret of an existing profile. The profile
// drops back to disabled until the new secret passes setup verification, so
// a user who lost their device cannot be locked out mid-rotation by the old
// secret lingering.
func (s *TwoFactorService) RegenerateSecret(ctx context.Context, userID uuid.UUID, accountEmail string) (*SetupInfo, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTwoFactorNotEnrolled
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, err := otp.GenerateSecret(s.config.SecretLength)
	if err != nil {
		s.logger.Error("failed to generate secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.profileRepo.UpdateSecret(ctx, profile.ID, otp.EncodeBase32(secret)); err != nil {
		s.logger.Error("failed to update secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("two-factor secret regenerated",
		slog.String("user_id", userID.String()),
		slog.String("profile_id", profile.ID.String()))

	return s.buildSetupInfo(secret, accountEmail, false)
}

// VerifySetup checks the first code from the user's authenticator and, on
// success, enables the profile and issues a fresh batch of backup codes.
// A wider window than login applies here: the user has just finished typing
// a secret into a new app and some clock skew is expected.
func (s *TwoFactorService) VerifySetup(ctx context.Context, userID uuid.UUID, code string, meta models.RequestMeta) ([]string, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTwoFactorNotEnrolled
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, err := profile.SecretBytes()
	if err != nil {
		s.logger.Error("stored secret is not valid Base32",
			slog.String("profile_id", profile.ID.String()),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !otp.VerifyTOTP(secret, strings.TrimSpace(code), s.config.Period, s.config.SetupWindow, time.Now()) {
		_ = s.audit.LogAttempt(ctx, userID, models.MethodTOTP, false, meta)
		return nil, models.ErrInvalidCode
	}

	if err := s.profileRepo.SetEnabled(ctx, profile.ID, true); err != nil {
		s.logger.Error("failed to enable profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, err := s.replaceBackupCodes(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	if err := s.profileRepo.UpdateLastUsedAt(ctx, profile.ID); err != nil {
		s.logger.Error("failed to stamp last_used_at", slog.Any("error", err))
	}

	_ = s.audit.LogAttempt(ctx, userID, models.MethodTOTP, true, meta)

	s.logger.Info("two-factor enabled",
		slog.String("user_id", userID.String()),
		slog.String("profile_id", profile.ID.String()))

	return codes, nil
}

// Verify checks a submitted credential against the user's enabled second
// factors and returns the method that matched. Exactly one consumption path
// runs per call; backup and email codes are burned atomically so a code
// replayed concurrently succeeds for at most one caller.
func (s *TwoFactorService) Verify(ctx context.Context, userID uuid.UUID, credential string, meta models.RequestMeta) (string, error) {
	profile, err := s.profileRepo.GetEnabledByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	credential = strings.ToUpper(strings.TrimSpace(credential))

	if strings.Contains(credential, "-") {
		return s.verifyBackupCode(ctx, profile, credential, meta)
	}

	if len(credential) == s.config.Digits && isDigits(credential) {
		method, handled, err := s.verifyEmailCode(ctx, userID, profile, credential, meta)
		if handled {
			return method, err
		}
	}

	return s.verifyTOTP(ctx, profile, credential, meta)
}

// verifyBackupCode consumes a single-use recovery code
func (s *TwoFactorService) verifyBackupCode(ctx context.Context, profile *models.TwoFactorProfile, code string, meta models.RequestMeta) (string, error) {
	err := s.backupRepo.Consume(ctx, profile.ID, code)
	switch {
	case err == nil:
		// consumed below
	case errors.Is(err, models.ErrCodeAlreadyUsed):
		_ = s.audit.LogAttempt(ctx, profile.UserID, models.MethodBackup, false, meta)
		return "", models.ErrCodeAlreadyUsed
	case errors.Is(err, models.ErrNotFound):
		_ = s.audit.LogAttempt(ctx, profile.UserID, models.MethodBackup, false, meta)
		return "", models.ErrInvalidCode
	default:
		s.logger.Error("failed to consume backup code", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if err := s.profileRepo.UpdateLastUsedAt(ctx, profile.ID); err != nil {
		s.logger.Error("failed to stamp last_used_at", slog.Any("error", err))
	}

	remaining, err := s.backupRepo.CountUnused(ctx, profile.ID)
	if err == nil && remaining <= 2 {
		s.logger.Warn("backup codes running low",
			slog.String("user_id", profile.UserID.String()),
			slog.Int("remaining", remaining))
	}

	_ = s.audit.LogAttempt(ctx, profile.UserID, models.MethodBackup, true, meta)
	return models.MethodBackup, nil
}

// verifyEmailCode tries the credential against a pending email challenge.
// handled is false when no challenge matches the digits, in which case the
// caller falls through to TOTP; an expired or replayed challenge is a final
// answer and does not fall through.
func (s *TwoFactorService) verifyEmailCode(ctx context.Context, userID uuid.UUID, profile *models.TwoFactorProfile, code string, meta models.RequestMeta) (string, bool, error) {
	challenge, err := s.emailRepo.GetUnusedByUserAndCode(ctx, userID, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", false, nil
		}
		s.logger.Error("failed to look up email challenge", slog.Any("error", err))
		return "", true, models.ErrInternalServer
	}

	if challenge.IsExpired(time.Now()) {
		_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, false, meta)
		return "", true, models.ErrCodeExpired
	}

	if err := s.emailRepo.Consume(ctx, challenge.ID); err != nil {
		if errors.Is(err, models.ErrCodeAlreadyUsed) {
			_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, false, meta)
			return "", true, models.ErrCodeAlreadyUsed
		}
		s.logger.Error("failed to consume email challenge", slog.Any("error", err))
		return "", true, models.ErrInternalServer
	}

	if err := s.profileRepo.UpdateLastUsedAt(ctx, profile.ID); err != nil {
		s.logger.Error("failed to stamp last_used_at", slog.Any("error", err))
	}

	_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, true, meta)
	return models.MethodEmail, true, nil
}

// verifyTOTP checks the credential against the time-based code
func (s *TwoFactorService) verifyTOTP(ctx context.Context, profile *models.TwoFactorProfile, code string, meta models.RequestMeta) (string, error) {
	secret, err := profile.SecretBytes()
	if err != nil {
		s.logger.Error("stored secret is not valid Base32",
			slog.String("profile_id", profile.ID.String()),
			slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if !otp.VerifyTOTP(secret, code, s.config.Period, s.config.VerifyWindow, time.Now()) {
		_ = s.audit.LogAttempt(ctx, profile.UserID, models.MethodTOTP, false, meta)
		return "", models.ErrInvalidCode
	}

	if err := s.profileRepo.UpdateLastUsedAt(ctx, profile.ID); err != nil {
		s.logger.Error("failed to stamp last_used_at", slog.Any("error", err))
	}

	_ = s.audit.LogAttempt(ctx, profile.UserID, models.MethodTOTP, true, meta)
	return models.MethodTOTP, nil
}

// VerifyMagicLink verifies the session by the token from a challenge email.
// The token must resolve to a live challenge belonging to the signed-in
// user; consumption burns the paired numeric code as well, since both are
// faces of the same challenge row.
func (s *TwoFactorService) VerifyMagicLink(ctx context.Context, userID uuid.UUID, token string, meta models.RequestMeta) error {
	if token == "" {
		return models.ErrInvalidCode
	}

	challenge, err := s.emailRepo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, false, meta)
			return models.ErrInvalidCode
		}
		s.logger.Error("failed to look up magic link token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if challenge.UserID != userID {
		s.logger.Warn("magic link user mismatch",
			slog.String("user_id", userID.String()),
			slog.String("challenge_id", challenge.ID.String()))
		_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, false, meta)
		return models.ErrInvalidCode
	}

	if challenge.IsUsed() {
		_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, false, meta)
		return models.ErrCodeAlreadyUsed
	}

	if challenge.IsExpired(time.Now()) {
		_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, false, meta)
		return models.ErrCodeExpired
	}

	if err := s.emailRepo.Consume(ctx, challenge.ID); err != nil {
		if errors.Is(err, models.ErrCodeAlreadyUsed) {
			_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, false, meta)
			return models.ErrCodeAlreadyUsed
		}
		s.logger.Error("failed to consume email challenge", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if profile, err := s.profileRepo.GetEnabledByUserID(ctx, userID); err == nil {
		if err := s.profileRepo.UpdateLastUsedAt(ctx, profile.ID); err != nil {
			s.logger.Error("failed to stamp last_used_at", slog.Any("error", err))
		}
	}

	_ = s.audit.LogAttempt(ctx, userID, models.MethodEmail, true, meta)
	return nil
}

// Disable turns two-factor off. A valid current TOTP code is required so a
// hijacked but unverified session cannot silently strip the account's second
// factor. The enabled flag drops first; the code cascades follow, and any
// rows that survive a partial failure are inert without an enabled profile.
func (s *TwoFactorService) Disable(ctx context.Context, userID uuid.UUID, code string, meta models.RequestMeta) error {
	profile, err := s.profileRepo.GetEnabledByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return models.ErrInternalServer
	}

	secret, err := profile.SecretBytes()
	if err != nil {
		s.logger.Error("stored secret is not valid Base32", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !otp.VerifyTOTP(secret, strings.TrimSpace(code), s.config.Period, s.config.SetupWindow, time.Now()) {
		_ = s.audit.LogAttempt(ctx, userID, models.MethodTOTP, false, meta)
		return models.ErrInvalidCode
	}

	_ = s.audit.LogAttempt(ctx, userID, models.MethodTOTP, true, meta)

	if err := s.profileRepo.SetEnabled(ctx, profile.ID, false); err != nil {
		s.logger.Error("failed to disable profile", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.backupRepo.DeleteByProfileID(ctx, profile.ID); err != nil {
		s.logger.Error("failed to delete backup codes", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.emailRepo.DeleteByUserID(ctx, userID); err != nil {
		s.logger.Error("failed to delete email challenges", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("two-factor disabled",
		slog.String("user_id", userID.String()),
		slog.String("profile_id", profile.ID.String()))

	return nil
}

// RegenerateBackupCodes replaces the user's recovery codes with a fresh
// batch. The old batch is invalidated atomically with the insert of the new
// one.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	profile, err := s.profileRepo.GetEnabledByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, err := s.replaceBackupCodes(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("backup codes regenerated",
		slog.String("user_id", userID.String()),
		slog.String("profile_id", profile.ID.String()))

	return codes, nil
}

// Status reports the user's current two-factor state for display
func (s *TwoFactorService) Status(ctx context.Context, userID uuid.UUID) (*models.TwoFactorStatus, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.TwoFactorStatus{Enabled: false}, nil
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	status := &models.TwoFactorStatus{
		Enabled:    profile.Enabled,
		LastUsedAt: profile.LastUsedAt,
	}
	if profile.Enabled {
		enrolledAt := profile.CreatedAt
		status.EnrolledAt = &enrolledAt

		count, err := s.backupRepo.CountUnused(ctx, profile.ID)
		if err != nil {
			s.logger.Error("failed to count backup codes", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		status.UnusedBackupCodes = count
	}

	return status, nil
}

// replaceBackupCodes generates a batch and installs it, retrying generation
// when a code collides with one held by another profile
func (s *TwoFactorService) replaceBackupCodes(ctx context.Context, profileID uuid.UUID) ([]string, error) {
	for attempt := 0; attempt < replaceBatchAttempts; attempt++ {
		codes, err := otp.GenerateBackupCodes(s.config.BackupCodeCount, 8)
		if err != nil {
			s.logger.Error("failed to generate backup codes", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		err = s.backupRepo.ReplaceBatch(ctx, profileID, codes)
		if err == nil {
			return codes, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			s.logger.Error("failed to replace backup codes", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.logger.Warn("backup code collision, regenerating batch",
			slog.String("profile_id", profileID.String()),
			slog.Int("attempt", attempt+1))
	}

	s.logger.Error("backup code generation kept colliding",
		slog.String("profile_id", profileID.String()))
	return nil, models.ErrInternalServer
}

// buildSetupInfo renders the secret into the forms the setup screen needs
func (s *TwoFactorService) buildSetupInfo(secret []byte, accountEmail string, enabled bool) (*SetupInfo, error) {
	uri := otp.ProvisioningURI(secret, accountEmail, s.config.Issuer, s.config.Digits, s.config.Period)

	qr, err := qrcode.New(uri, qrcode.Medium)
	if err != nil {
		s.logger.Error("failed to create QR code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	png, err := qr.PNG(200)
	if err != nil {
		s.logger.Error("failed to encode QR code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &SetupInfo{
		Secret:          strings.TrimRight(otp.EncodeBase32(secret), "="),
		ProvisioningURI: uri,
		QRCode:          "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Enabled:         enabled,
	}, nil
}

// isDigits reports whether s is entirely ASCII digits
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
