package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tannerhall/mantrap/internal/database"
	"github.com/tannerhall/mantrap/internal/models"
)

// BackupCodeRepository handles recovery code data access
type BackupCodeRepository struct {
	db *database.DB
}

// NewBackupCodeRepository creates a new BackupCodeRepository
func NewBackupCodeRepository(db *database.DB) *BackupCodeRepository {
	return &BackupCodeRepository{db: db}
}

// ReplaceBatch atomically replaces a profile's codes: the old batch is
// deleted and the new one bulk-inserted inside a single transaction, so a
// concurrent consumer sees either the fully old or the fully new batch. A
// cross-profile collision on the globally unique code column surfaces as
// ErrConflict; the caller regenerates and retries.
func (r *BackupCodeRepository) ReplaceBatch(ctx context.Context, profileID uuid.UUID, codes []string) error {
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM backup_codes WHERE profile_id = $1`, profileID); err != nil {
			return fmt.Errorf("failed to delete old backup codes: %w", err)
		}

		rows := make([][]any, len(codes))
		for i, code := range codes {
			rows[i] = []any{profileID, code}
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"backup_codes"},
			[]string{"profile_id", "code"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return models.ErrConflict
		}
		return fmt.Errorf("failed to replace backup code batch: %w", err)
	}

	return nil
}

// Consume marks a code used with a conditional update keyed on the unused
// state: of any number of concurrent attempts on the same code exactly one
// succeeds. The losers observe ErrCodeAlreadyUsed; an unknown code is
// ErrNotFound.
func (r *BackupCodeRepository) Consume(ctx context.Context, profileID uuid.UUID, code string) error {
	query := `
		UPDATE backup_codes
		SET used_at = NOW()
		WHERE profile_id = $1 AND code = $2 AND used_at IS NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, profileID, code)
	if err != nil {
		return fmt.Errorf("failed to consume backup code: %w", err)
	}

	if result.RowsAffected() == 1 {
		return nil
	}

	// Distinguish "already used" from "no such code" for the caller's
	// user-facing message; audit treats both as failures.
	var usedAt *time.Time
	err = r.db.Pool.QueryRow(ctx,
		`SELECT used_at FROM backup_codes WHERE profile_id = $1 AND code = $2`,
		profileID, code,
	).Scan(&usedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to inspect backup code: %w", err)
	}

	return models.ErrCodeAlreadyUsed
}

// CountUnused returns how many codes remain available for a profile
func (r *BackupCodeRepository) CountUnused(ctx context.Context, profileID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM backup_codes
		WHERE profile_id = $1 AND used_at IS NULL
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, profileID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unused backup codes: %w", err)
	}

	return count, nil
}

// DeleteByProfileID removes all codes for a profile (disable cascade)
func (r *BackupCodeRepository) DeleteByProfileID(ctx context.Context, profileID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM backup_codes WHERE profile_id = $1`, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}

	return nil
}
