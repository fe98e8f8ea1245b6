package handlers

import "time"

// SetupResponse carries everything the setup screen needs to enroll an
// authenticator app. The secret appears here once and is never shown again.
type SetupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"`
}

// VerifySetupRequest confirms enrollment with the first generated code
type VerifySetupRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// VerifySetupResponse returns the one-time view of the backup codes
type VerifySetupResponse struct {
	Enabled     bool     `json:"enabled"`
	BackupCodes []string `json:"backup_codes"`
	Message     string   `json:"message"`
}

// VerifyRequest submits a credential during login verification. Code length
// spans TOTP digits through formatted backup codes.
type VerifyRequest struct {
	Code string `json:"code" validate:"required,min=6,max=16"`
	Next string `json:"next,omitempty" validate:"omitempty,max=200"`
}

// VerifyResponse reports a successful verification
type VerifyResponse struct {
	Verified bool   `json:"verified"`
	Method   string `json:"method"`
	Next     string `json:"next"`
}

// SendEmailChallengeResponse reports the outcome of issuing an email
// challenge. Sent is false when the challenge exists but delivery failed.
type SendEmailChallengeResponse struct {
	Sent      bool      `json:"sent"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

// DisableRequest turns off two-factor; a current TOTP code is mandatory
type DisableRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// DisableResponse confirms the disable
type DisableResponse struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// RegenerateBackupCodesResponse returns the fresh batch; the previous batch
// is already void by the time this response is written
type RegenerateBackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// AuditEntryResponse is one verification attempt in the user's audit view
type AuditEntryResponse struct {
	Method    string    `json:"method"`
	Success   bool      `json:"success"`
	IPAddress *string   `json:"ip_address,omitempty"`
	UserAgent *string   `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditTrailResponse wraps the audit listing
type AuditTrailResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}
