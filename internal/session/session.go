// Package session tracks second-factor verification state across requests.
// The primary authentication system owns login; this package only records
// whether the current session has passed a second-factor check and where the
// user intended to go before being interrupted by the challenge.
package session

import (
	"errors"
	"net/http"
)

// ErrNoSession indicates the request carries no usable verification state
var ErrNoSession = errors.New("no session")

// Verification is the per-session second-factor state. Verified is set only
// by a successful verification and Next holds the path to return the user to
// afterwards.
type Verification struct {
	Verified bool   `json:"verified"`
	Next     string `json:"next"`
}

// Store reads and writes Verification state for an HTTP exchange
type Store interface {
	Get(r *http.Request) (Verification, error)
	Put(w http.ResponseWriter, v Verification) error
	Clear(w http.ResponseWriter)
}
