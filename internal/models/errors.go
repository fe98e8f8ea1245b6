package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Verification outcomes
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrCodeExpired          = errors.New("verification code has expired")
	ErrCodeAlreadyUsed      = errors.New("verification code already used")
	ErrTwoFactorNotEnabled  = errors.New("two-factor authentication not enabled")
	ErrTwoFactorNotEnrolled = errors.New("two-factor authentication not set up")
	ErrAlreadyEnabled       = errors.New("two-factor authentication already enabled")
)
