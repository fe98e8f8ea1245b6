package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/tannerhall/mantrap/internal/auth"
	"github.com/tannerhall/mantrap/internal/handlers"
	"github.com/tannerhall/mantrap/internal/middleware"
	"github.com/tannerhall/mantrap/internal/session"
)

// RegisterRoutes registers all application routes. Every route runs behind
// the identity middleware; management routes additionally require a session
// that already passed a second-factor check.
func RegisterRoutes(
	router chi.Router,
	twoFactorHandler *handlers.TwoFactorHandler,
	auditHandler *handlers.AuditHandler,
	guard *auth.Guard,
	sessions session.Store,
	logger *slog.Logger,
) {
	verifyLimit := middleware.DefaultVerifyRateLimit()
	emailLimit := middleware.DefaultEmailSendRateLimit()

	router.Group(func(r chi.Router) {
		r.Use(auth.IdentityMiddleware())

		// Enrollment and the challenge itself; reachable before the
		// session is verified.
		r.Post("/2fa/setup", twoFactorHandler.Setup)
		r.With(middleware.RateLimitByIP(verifyLimit)).Post("/2fa/setup/verify", twoFactorHandler.VerifySetup)
		r.With(middleware.RateLimitByIP(verifyLimit)).Post("/2fa/verify", twoFactorHandler.Verify)
		r.With(middleware.RateLimitByIP(emailLimit)).Post("/2fa/email/send", twoFactorHandler.SendEmailChallenge)
		r.With(middleware.RateLimitByIP(verifyLimit)).Get("/2fa/email/verify", twoFactorHandler.VerifyMagicLink)
		r.Get("/2fa/status", twoFactorHandler.Status)

		// Management routes gated on a verified session.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireVerified(guard, sessions, logger))
			r.Post("/2fa/backup-codes/regenerate", twoFactorHandler.RegenerateBackupCodes)
			r.Post("/2fa/secret/regenerate", twoFactorHandler.RegenerateSecret)
			r.Post("/2fa/disable", twoFactorHandler.Disable)
			r.Get("/2fa/audit", auditHandler.Recent)
		})
	})
}
