package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tannerhall/mantrap/internal/database"
	"github.com/tannerhall/mantrap/internal/models"
)

// AuditLogRepository handles verification attempt log data access. The table
// is append-only: this type exposes insert, a display query, and a retention
// purge, nothing else.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

// scanAuditRow populates an AuditLogEntry model from a database row
func scanAuditRow(row rowScanner) (*models.AuditLogEntry, error) {
	var entry models.AuditLogEntry

	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Method, &entry.Success,
		&entry.IPAddress, &entry.UserAgent, &entry.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &entry, nil
}

// Create appends a verification attempt entry
func (r *AuditLogRepository) Create(ctx context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error) {
	query := `
		INSERT INTO twofactor_audit_log (user_id, method, success, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, method, success, ip_address, user_agent, created_at
	`

	result, err := scanAuditRow(r.pool.QueryRow(ctx, query,
		entry.UserID, entry.Method, entry.Success, entry.IPAddress, entry.UserAgent,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create audit log entry: %w", err)
	}

	return result, nil
}

// RecentByUser retrieves the most recent entries for a user, newest first.
// Display only; nothing in the verification flow branches on this.
func (r *AuditLogRepository) RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, user_id, method, success, ip_address, user_agent, created_at
		FROM twofactor_audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	return scanAuditRows(rows)
}

// scanAuditRows iterates through rows and scans each into AuditLogEntry models
func scanAuditRows(rows pgx.Rows) ([]*models.AuditLogEntry, error) {
	defer rows.Close()

	entries := make([]*models.AuditLogEntry, 0)

	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return entries, nil
}

// PurgeOlderThan removes entries past the retention window
func (r *AuditLogRepository) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	query := `
		DELETE FROM twofactor_audit_log
		WHERE created_at < $1
	`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit log: %w", err)
	}

	return result.RowsAffected(), nil
}
