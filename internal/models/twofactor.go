package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tannerhall/mantrap/internal/otp"
)

// TwoFactorProfile holds the 2FA configuration for one user account. A
// profile is created disabled; it flips to enabled only after the owner
// proves possession of the freshly generated secret during setup.
type TwoFactorProfile struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	SecretKey  string // Base32-encoded shared secret; never logged
	Enabled    bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// SecretBytes decodes the stored Base32 secret for OTP computation.
func (p *TwoFactorProfile) SecretBytes() ([]byte, error) {
	return otp.DecodeBase32(p.SecretKey)
}

// BackupCode is a single-use recovery credential belonging to a profile.
// The code text is globally unique across all profiles so a submitted code
// resolves to exactly one row.
type BackupCode struct {
	ID        uuid.UUID
	ProfileID uuid.UUID
	Code      string // XXXX-XXXX, upper-case hex
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsUsed reports whether the code has been consumed.
func (c *BackupCode) IsUsed() bool {
	return c.UsedAt != nil
}

// TwoFactorStatus summarizes a user's 2FA state for display.
type TwoFactorStatus struct {
	Enabled           bool       `json:"enabled"`
	EnrolledAt        *time.Time `json:"enrolled_at,omitempty"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	UnusedBackupCodes int        `json:"unused_backup_codes"`
}
