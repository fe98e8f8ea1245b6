package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/tannerhall/mantrap/internal/models"
	"github.com/tannerhall/mantrap/internal/otp"
)

// EmailCodeRepository defines the persistence interface for email challenges
type EmailCodeRepository interface {
	Create(ctx context.Context, code *models.EmailVerificationCode) error
	GetUnusedByUserAndCode(ctx context.Context, userID uuid.UUID, code string) (*models.EmailVerificationCode, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationCode, error)
	Consume(ctx context.Context, id uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

// EmailChallengeService issues fallback email challenges: a short numeric
// code the user can type plus a magic link that verifies in one click. Only
// the SHA-256 hash of the link token is stored; possession of the plain
// token in the email is the credential.
type EmailChallengeService struct {
	repo          EmailCodeRepository
	sender        EmailSender
	logger        *slog.Logger
	magicLinkBase string
}

// NewEmailChallengeService creates a new EmailChallengeService
func NewEmailChallengeService(repo EmailCodeRepository, sender EmailSender, logger *slog.Logger, magicLinkBase string) *EmailChallengeService {
	return &EmailChallengeService{
		repo:          repo,
		sender:        sender,
		logger:        logger,
		magicLinkBase: magicLinkBase,
	}
}

// Issue creates and persists a new challenge for the user, then attempts
// delivery. The challenge is committed before the send, and a delivery
// failure does not unwind it: the returned delivered flag tells the caller
// to warn the user instead.
func (s *EmailChallengeService) Issue(ctx context.Context, userID uuid.UUID, email string, meta models.RequestMeta) (*models.EmailVerificationCode, bool, error) {
	code, err := otp.GenerateNumericCode(otp.DefaultDigits)
	if err != nil {
		s.logger.Error("failed to generate challenge code", slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}

	token, err := otp.GenerateToken(32)
	if err != nil {
		s.logger.Error("failed to generate magic link token", slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}

	challenge := &models.EmailVerificationCode{
		UserID:    userID,
		Code:      code,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(models.EmailCodeTTL),
		RequestIP: meta.IPPtr(),
	}

	if err := s.repo.Create(ctx, challenge); err != nil {
		s.logger.Error("failed to persist email challenge",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
		return nil, false, models.ErrInternalServer
	}

	magicLink := fmt.Sprintf("%s/2fa/email/verify?token=%s", s.magicLinkBase, url.QueryEscape(token))

	if err := s.sender.SendChallenge(ctx, email, code, magicLink, challenge.ExpiresAt); err != nil {
		s.logger.Warn("challenge email delivery failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
		return challenge, false, nil
	}

	s.logger.Info("email challenge issued",
		slog.String("user_id", userID.String()),
		slog.String("challenge_id", challenge.ID.String()),
		slog.Time("expires_at", challenge.ExpiresAt))

	return challenge, true, nil
}

// hashToken derives the stored form of a magic-link token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
