package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tannerhall/mantrap/internal/session"
	pkghttp "github.com/tannerhall/mantrap/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey is the key for storing the caller identity in context
	IdentityContextKey contextKey = "identity"
)

// Identity is the signed-in user as asserted by the fronting authentication
// layer. This service owns only the second factor; primary login happens
// upstream and arrives here as trusted headers.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// IdentityMiddleware extracts the caller identity from the X-User-ID and
// X-User-Email headers set by the upstream auth proxy. Requests without a
// parseable identity are rejected; nothing below this middleware runs
// anonymously.
func IdentityMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawID := r.Header.Get("X-User-ID")
			if rawID == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			userID, err := uuid.Parse(rawID)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			identity := &Identity{
				UserID: userID,
				Email:  r.Header.Get("X-User-Email"),
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentityFromContext extracts the caller identity from request context
func GetIdentityFromContext(r *http.Request) *Identity {
	identity, ok := r.Context().Value(IdentityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}

// RequireVerified gates a route on a completed second-factor verification.
// The two rejection cases carry distinct error codes so clients can route
// the user to enrollment or to the challenge screen.
func RequireVerified(guard *Guard, store session.Store, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentityFromContext(r)
			if identity == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			v, err := store.Get(r)
			if err != nil {
				v = session.Verification{}
			}

			decision, err := guard.Check(r.Context(), identity.UserID, v)
			if err != nil {
				logger.Error("guard check failed",
					slog.String("user_id", identity.UserID.String()),
					slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Verification check failed")
				return
			}

			switch decision {
			case DecisionAllowed:
				next.ServeHTTP(w, r)
			case DecisionNeedsSetup:
				pkghttp.WriteError(w, http.StatusForbidden, "two_factor_setup_required",
					"Two-factor authentication must be set up")
			default:
				pkghttp.WriteError(w, http.StatusForbidden, "two_factor_verification_required",
					"Two-factor verification required")
			}
		})
	}
}
