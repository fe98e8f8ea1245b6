package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tannerhall/mantrap/internal/database"
	"github.com/tannerhall/mantrap/internal/models"
)

// ProfileRepository handles two-factor profile data access
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *database.DB) *ProfileRepository {
	return &ProfileRepository{pool: db.Pool}
}

// scanProfileRow populates a TwoFactorProfile model from a database row
func scanProfileRow(row rowScanner) (*models.TwoFactorProfile, error) {
	var profile models.TwoFactorProfile

	err := row.Scan(
		&profile.ID, &profile.UserID, &profile.SecretKey,
		&profile.Enabled, &profile.CreatedAt, &profile.LastUsedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &profile, nil
}

// Create inserts a new profile for a user. Profiles are created disabled;
// enabling requires a verified setup. One profile per user is enforced by a
// unique index on user_id.
func (r *ProfileRepository) Create(ctx context.Context, userID uuid.UUID, secretKey string) (*models.TwoFactorProfile, error) {
	query := `
		INSERT INTO twofactor_profiles (user_id, secret_key, enabled)
		VALUES ($1, $2, FALSE)
		RETURNING id, user_id, secret_key, enabled, created_at, last_used_at
	`

	profile, err := scanProfileRow(r.pool.QueryRow(ctx, query, userID, secretKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create two-factor profile: %w", err)
	}

	return profile, nil
}

// GetByUserID retrieves the profile owned by a user
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error) {
	query := `
		SELECT id, user_id, secret_key, enabled, created_at, last_used_at
		FROM twofactor_profiles
		WHERE user_id = $1
	`

	return scanProfileRow(r.pool.QueryRow(ctx, query, userID))
}

// GetEnabledByUserID retrieves the profile only if 2FA is enabled for the user
func (r *ProfileRepository) GetEnabledByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error) {
	query := `
		SELECT id, user_id, secret_key, enabled, created_at, last_used_at
		FROM twofactor_profiles
		WHERE user_id = $1 AND enabled = TRUE
	`

	return scanProfileRow(r.pool.QueryRow(ctx, query, userID))
}

// UpdateSecret replaces the shared secret and drops the profile back to the
// disabled state until the new secret is re-verified
func (r *ProfileRepository) UpdateSecret(ctx context.Context, profileID uuid.UUID, secretKey string) error {
	query := `
		UPDATE twofactor_profiles
		SET secret_key = $1, enabled = FALSE, last_used_at = NULL
		WHERE id = $2
	`

	result, err := r.pool.Exec(ctx, query, secretKey, profileID)
	if err != nil {
		return fmt.Errorf("failed to update secret: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetEnabled flips the enabled flag
func (r *ProfileRepository) SetEnabled(ctx context.Context, profileID uuid.UUID, enabled bool) error {
	query := `
		UPDATE twofactor_profiles
		SET enabled = $1
		WHERE id = $2
	`

	result, err := r.pool.Exec(ctx, query, enabled, profileID)
	if err != nil {
		return fmt.Errorf("failed to set enabled flag: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// UpdateLastUsedAt stamps the profile after a successful verification
func (r *ProfileRepository) UpdateLastUsedAt(ctx context.Context, profileID uuid.UUID) error {
	query := `
		UPDATE twofactor_profiles
		SET last_used_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, profileID)
	if err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes a profile; backup codes cascade via foreign key
func (r *ProfileRepository) Delete(ctx context.Context, profileID uuid.UUID) error {
	query := `DELETE FROM twofactor_profiles WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
