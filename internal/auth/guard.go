// Package auth contains the second-factor gate applied in front of protected
// resources. It decides, per request, whether the caller may pass or must
// first complete enrollment or a verification challenge.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tannerhall/mantrap/internal/models"
	"github.com/tannerhall/mantrap/internal/session"
)

// Decision is the outcome of a guard check
type Decision int

const (
	// DecisionNeedsSetup means the user has no enabled second factor and
	// must enroll before reaching protected resources
	DecisionNeedsSetup Decision = iota
	// DecisionNeedsVerification means a second factor is enrolled but this
	// session has not yet passed a challenge
	DecisionNeedsVerification
	// DecisionAllowed means the session has a completed verification
	DecisionAllowed
)

func (d Decision) String() string {
	switch d {
	case DecisionNeedsSetup:
		return "needs_setup"
	case DecisionNeedsVerification:
		return "needs_verification"
	case DecisionAllowed:
		return "allowed"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// ProfileFinder looks up a user's enabled two-factor profile
type ProfileFinder interface {
	GetEnabledByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error)
}

// Guard evaluates second-factor requirements for a user and session
type Guard struct {
	profiles ProfileFinder
}

// NewGuard creates a new Guard
func NewGuard(profiles ProfileFinder) *Guard {
	return &Guard{profiles: profiles}
}

// Check returns the gate decision for a user's current session. Enrollment
// state is read from the database on every call so that disabling 2FA in one
// session is observed immediately by others; the verified flag alone never
// grants access to a user without an enabled profile.
func (g *Guard) Check(ctx context.Context, userID uuid.UUID, v session.Verification) (Decision, error) {
	_, err := g.profiles.GetEnabledByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return DecisionNeedsSetup, nil
		}
		return DecisionNeedsSetup, fmt.Errorf("failed to check enrollment: %w", err)
	}

	if v.Verified {
		return DecisionAllowed, nil
	}

	return DecisionNeedsVerification, nil
}
