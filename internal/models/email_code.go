package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailCodeTTL is the fixed validity window for an email challenge.
const EmailCodeTTL = 10 * time.Minute

// EmailVerificationCode is a time-boxed, single-use challenge delivered by
// email: a 6-digit code for manual entry plus an opaque token for the magic
// link. The token itself is never stored, only its SHA-256 hash.
type EmailVerificationCode struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Code      string // 6 decimal digits
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	RequestIP *string
	CreatedAt time.Time
}

// IsExpired reports whether the code's deadline has passed at the given time.
func (c *EmailVerificationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsUsed reports whether the code has been consumed.
func (c *EmailVerificationCode) IsUsed() bool {
	return c.UsedAt != nil
}

// IsValid reports whether the code can still be accepted: not used and not
// past its expiry. Both terminal states are non-reversible.
func (c *EmailVerificationCode) IsValid(now time.Time) bool {
	return !c.IsUsed() && !c.IsExpired(now)
}
