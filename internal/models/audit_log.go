package models

import (
	"time"

	"github.com/google/uuid"
)

// Verification methods recorded in the audit trail
const (
	MethodTOTP   = "totp"
	MethodBackup = "backup"
	MethodEmail  = "email"
)

// AuditLogEntry records one verification attempt. Entries are append-only:
// nothing mutates them after insert, retrieval exists only for display, and
// the sole delete path is the background retention purge.
type AuditLogEntry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Method    string // totp | backup | email
	Success   bool
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
}

// RequestMeta carries requester attribution captured at the HTTP boundary
// and threaded through the orchestrator into every audit entry.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// IPPtr returns the IP as a nullable column value.
func (m RequestMeta) IPPtr() *string {
	if m.IPAddress == "" {
		return nil
	}
	ip := m.IPAddress
	return &ip
}

// UserAgentPtr returns the user agent as a nullable column value.
func (m RequestMeta) UserAgentPtr() *string {
	if m.UserAgent == "" {
		return nil
	}
	ua := m.UserAgent
	return &ua
}
