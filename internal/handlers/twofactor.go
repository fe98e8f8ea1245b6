package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tannerhall/mantrap/internal/auth"
	"github.com/tannerhall/mantrap/internal/models"
	"github.com/tannerhall/mantrap/internal/services"
	"github.com/tannerhall/mantrap/internal/session"
	pkghttp "github.com/tannerhall/mantrap/pkg/http"
	pkglogger "github.com/tannerhall/mantrap/pkg/logger"
)

// TwoFactorHandler handles enrollment and verification HTTP requests
type TwoFactorHandler struct {
	twoFactorService *services.TwoFactorService
	challengeService *services.EmailChallengeService
	sessions         session.Store
	logger           *slog.Logger
	ipConfig         *pkghttp.IPConfig
	defaultLanding   string
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(
	twoFactorService *services.TwoFactorService,
	challengeService *services.EmailChallengeService,
	sessions session.Store,
	logger *slog.Logger,
	ipConfig *pkghttp.IPConfig,
	defaultLanding string,
) *TwoFactorHandler {
	return &TwoFactorHandler{
		twoFactorService: twoFactorService,
		challengeService: challengeService,
		sessions:         sessions,
		logger:           logger,
		ipConfig:         ipConfig,
		defaultLanding:   defaultLanding,
	}
}

// Setup handles POST /2fa/setup to begin enrollment
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	info, err := h.twoFactorService.Setup(r.Context(), identity.UserID, identity.Email)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyEnabled) {
			pkghttp.WriteConflict(w, "Two-factor authentication is already enabled")
			return
		}
		h.logger.Error("failed to start setup", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Setup failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SetupResponse{
		Secret:          info.Secret,
		ProvisioningURI: info.ProvisioningURI,
		QRCode:          info.QRCode,
	})
}

// VerifySetup handles POST /2fa/setup/verify to confirm enrollment
func (h *TwoFactorHandler) VerifySetup(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req VerifySetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.twoFactorService.VerifySetup(r.Context(), identity.UserID, req.Code, h.requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotEnrolled):
			pkghttp.WriteNotFound(w, "No pending two-factor setup")
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Verification code is incorrect")
		default:
			h.logger.Error("failed to verify setup", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Verification failed")
		}
		return
	}

	// Enrollment proves possession; this session counts as verified.
	if err := h.sessions.Put(w, session.Verification{Verified: true}); err != nil {
		h.logger.Error("failed to write session", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Verification failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifySetupResponse{
		Enabled:     true,
		BackupCodes: codes,
		Message:     "Two-factor authentication is enabled. Store these backup codes somewhere safe; they will not be shown again.",
	})
}

// Verify handles POST /2fa/verify, the login challenge
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	method, err := h.twoFactorService.Verify(r.Context(), identity.UserID, req.Code, h.requestMeta(r))
	if err != nil {
		h.writeVerificationError(w, err)
		return
	}

	next := h.resolveNext(r, req.Next)

	if err := h.sessions.Put(w, session.Verification{Verified: true}); err != nil {
		h.logger.Error("failed to write session", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Verification failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, VerifyResponse{
		Verified: true,
		Method:   method,
		Next:     next,
	})
}

// SendEmailChallenge handles POST /2fa/email/send
func (h *TwoFactorHandler) SendEmailChallenge(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}
	if identity.Email == "" {
		pkghttp.WriteBadRequest(w, "No email address on record")
		return
	}

	status, err := h.twoFactorService.Status(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("failed to check two-factor status", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Could not send code")
		return
	}
	if !status.Enabled {
		pkghttp.WriteError(w, http.StatusForbidden, "two_factor_setup_required",
			"Two-factor authentication must be set up")
		return
	}

	challenge, delivered, err := h.challengeService.Issue(r.Context(), identity.UserID, identity.Email, h.requestMeta(r))
	if err != nil {
		h.logger.Error("failed to issue email challenge", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Could not send code")
		return
	}

	resp := SendEmailChallengeResponse{
		Sent:      delivered,
		ExpiresAt: challenge.ExpiresAt,
		Message:   "A verification code was sent to " + pkglogger.SanitizedEmail(identity.Email),
	}
	if !delivered {
		resp.Message = "The code could not be delivered. Try again shortly."
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// VerifyMagicLink handles GET /2fa/email/verify, the link from the challenge
// email. On success the browser is redirected to wherever the user was
// originally headed.
func (h *TwoFactorHandler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "Missing token")
		return
	}

	if err := h.twoFactorService.VerifyMagicLink(r.Context(), identity.UserID, token, h.requestMeta(r)); err != nil {
		h.writeVerificationError(w, err)
		return
	}

	next := h.resolveNext(r, "")

	if err := h.sessions.Put(w, session.Verification{Verified: true}); err != nil {
		h.logger.Error("failed to write session", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Verification failed")
		return
	}

	http.Redirect(w, r, next, http.StatusFound)
}

// RegenerateSecret handles POST /2fa/secret/regenerate. The profile drops
// back to disabled until the new secret passes setup verification, so the
// session's verified flag is cleared along with it.
func (h *TwoFactorHandler) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	info, err := h.twoFactorService.RegenerateSecret(r.Context(), identity.UserID, identity.Email)
	if err != nil {
		if errors.Is(err, models.ErrTwoFactorNotEnrolled) {
			pkghttp.WriteNotFound(w, "Two-factor authentication is not set up")
			return
		}
		h.logger.Error("failed to regenerate secret", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Regeneration failed")
		return
	}

	h.sessions.Clear(w)

	pkghttp.WriteJSON(w, http.StatusOK, SetupResponse{
		Secret:          info.Secret,
		ProvisioningURI: info.ProvisioningURI,
		QRCode:          info.QRCode,
	})
}

// Disable handles POST /2fa/disable
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req DisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.twoFactorService.Disable(r.Context(), identity.UserID, req.Code, h.requestMeta(r)); err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotEnabled):
			pkghttp.WriteNotFound(w, "Two-factor authentication is not enabled")
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Verification code is incorrect")
		default:
			h.logger.Error("failed to disable two-factor", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Disable failed")
		}
		return
	}

	h.sessions.Clear(w)

	pkghttp.WriteJSON(w, http.StatusOK, DisableResponse{
		Enabled: false,
		Message: "Two-factor authentication has been disabled",
	})
}

// RegenerateBackupCodes handles POST /2fa/backup-codes/regenerate
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	codes, err := h.twoFactorService.RegenerateBackupCodes(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, models.ErrTwoFactorNotEnabled) {
			pkghttp.WriteNotFound(w, "Two-factor authentication is not enabled")
			return
		}
		h.logger.Error("failed to regenerate backup codes", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Regeneration failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RegenerateBackupCodesResponse{BackupCodes: codes})
}

// Status handles GET /2fa/status
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentityFromContext(r)
	if identity == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	status, err := h.twoFactorService.Status(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("failed to get status", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to retrieve status")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// writeVerificationError maps verification outcomes to distinct error codes
// so clients can show precise messages without parsing text
func (h *TwoFactorHandler) writeVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteError(w, http.StatusForbidden, "two_factor_setup_required",
			"Two-factor authentication must be set up")
	case errors.Is(err, models.ErrCodeExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "code_expired", "Verification code has expired")
	case errors.Is(err, models.ErrCodeAlreadyUsed):
		pkghttp.WriteError(w, http.StatusUnauthorized, "code_already_used", "Verification code was already used")
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Verification code is incorrect")
	default:
		h.logger.Error("verification failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Verification failed")
	}
}

// requestMeta captures requester attribution for the audit trail
func (h *TwoFactorHandler) requestMeta(r *http.Request) models.RequestMeta {
	return models.RequestMeta{
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// resolveNext picks the post-verification destination: an explicit relative
// path from the request, else the session's stashed path, else the default
// landing. Absolute and scheme-relative URLs are rejected to keep the
// redirect on-site.
func (h *TwoFactorHandler) resolveNext(r *http.Request, requested string) string {
	if isSafePath(requested) {
		return requested
	}

	if v, err := h.sessions.Get(r); err == nil && isSafePath(v.Next) {
		return v.Next
	}

	return h.defaultLanding
}

// isSafePath accepts only same-site relative paths
func isSafePath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, "\\")
}
