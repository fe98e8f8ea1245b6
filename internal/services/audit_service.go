package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tannerhall/mantrap/internal/models"
)

// AuditLogRepository defines the persistence interface for verification
// attempt entries
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error)
	RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLogEntry, error)
}

// AuditService records every second-factor verification attempt with a
// dual-write pattern: immediate slog output plus a database row for display
// and retention.
type AuditService struct {
	repo   AuditLogRepository
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// LogAttempt records one verification attempt. Persistence failures are
// logged and swallowed so auditing never fails a verification flow.
func (s *AuditService) LogAttempt(ctx context.Context, userID uuid.UUID, method string, success bool, meta models.RequestMeta) error {
	entry := &models.AuditLogEntry{
		UserID:    userID,
		Method:    method,
		Success:   success,
		IPAddress: meta.IPPtr(),
		UserAgent: meta.UserAgentPtr(),
	}

	if success {
		s.logger.InfoContext(ctx, "verification attempt",
			slog.String("user_id", userID.String()),
			slog.String("method", method),
			slog.Bool("success", true),
		)
	} else {
		s.logger.WarnContext(ctx, "verification attempt failed",
			slog.String("user_id", userID.String()),
			slog.String("method", method),
			slog.String("ip_address", meta.IPAddress),
		)
	}

	if _, err := s.repo.Create(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit entry",
			slog.String("user_id", userID.String()),
			slog.String("method", method),
			slog.Any("error", err),
		)
		return nil
	}

	return nil
}

// RecentAttempts returns the newest attempt entries for a user, for display
func (s *AuditService) RecentAttempts(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	entries, err := s.repo.RecentByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent attempts: %w", err)
	}

	return entries, nil
}
