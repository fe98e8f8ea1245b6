package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tannerhall/mantrap/internal/database"
	"github.com/tannerhall/mantrap/internal/models"
)

// EmailCodeRepository handles email challenge data access
type EmailCodeRepository struct {
	pool *pgxpool.Pool
}

// NewEmailCodeRepository creates a new EmailCodeRepository
func NewEmailCodeRepository(db *database.DB) *EmailCodeRepository {
	return &EmailCodeRepository{pool: db.Pool}
}

// scanEmailCodeRow populates an EmailVerificationCode model from a database row
func scanEmailCodeRow(row rowScanner) (*models.EmailVerificationCode, error) {
	var code models.EmailVerificationCode

	err := row.Scan(
		&code.ID, &code.UserID, &code.Code, &code.TokenHash,
		&code.ExpiresAt, &code.UsedAt, &code.RequestIP, &code.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &code, nil
}

// Create persists a new email challenge
func (r *EmailCodeRepository) Create(ctx context.Context, code *models.EmailVerificationCode) error {
	query := `
		INSERT INTO email_verification_codes (user_id, code, token_hash, expires_at, request_ip)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		code.UserID, code.Code, code.TokenHash, code.ExpiresAt, code.RequestIP,
	).Scan(&code.ID, &code.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create email verification code: %w", database.MapPostgresError(err))
	}

	return nil
}

// GetUnusedByUserAndCode retrieves the newest unconsumed challenge matching
// the submitted digits. Expiry is left to the caller so an expired code can
// surface a distinct message from an unknown one.
func (r *EmailCodeRepository) GetUnusedByUserAndCode(ctx context.Context, userID uuid.UUID, code string) (*models.EmailVerificationCode, error) {
	query := `
		SELECT id, user_id, code, token_hash, expires_at, used_at, request_ip, created_at
		FROM email_verification_codes
		WHERE user_id = $1 AND code = $2 AND used_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	return scanEmailCodeRow(r.pool.QueryRow(ctx, query, userID, code))
}

// GetByTokenHash retrieves a challenge by the hash of its magic-link token
func (r *EmailCodeRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationCode, error) {
	query := `
		SELECT id, user_id, code, token_hash, expires_at, used_at, request_ip, created_at
		FROM email_verification_codes
		WHERE token_hash = $1
	`

	return scanEmailCodeRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// Consume marks a challenge used via a conditional update; a second consumer
// of the same row observes ErrCodeAlreadyUsed
func (r *EmailCodeRepository) Consume(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE email_verification_codes
		SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to consume email verification code: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrCodeAlreadyUsed
	}

	return nil
}

// DeleteByUserID removes all challenges for a user
func (r *EmailCodeRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM email_verification_codes WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete email verification codes: %w", err)
	}

	return nil
}

// PurgeExpired deletes challenges that expired more than a day ago. Recently
// expired rows are kept so "expired" can still be distinguished from
// "invalid" at check time.
func (r *EmailCodeRepository) PurgeExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM email_verification_codes
		WHERE expires_at < NOW() - INTERVAL '1 day'
	`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired email codes: %w", err)
	}

	return result.RowsAffected(), nil
}
