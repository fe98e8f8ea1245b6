package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tannerhall/mantrap/internal/config"
)

// sessionClaims is the JWT payload carried by the session cookie
type sessionClaims struct {
	Verified bool   `json:"verified"`
	Next     string `json:"next,omitempty"`
	jwt.RegisteredClaims
}

// CookieStore keeps verification state in an HS256-signed cookie. The state
// is two small fields, so a signed stateless cookie avoids a server-side
// session table; tampering with the Verified flag breaks the signature.
type CookieStore struct {
	signingKey []byte
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewCookieStore creates a CookieStore from session configuration
func NewCookieStore(cfg config.SessionConfig, secure bool) *CookieStore {
	return &CookieStore{
		signingKey: []byte(cfg.SigningKey),
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		secure:     secure,
	}
}

// Get parses the session cookie and returns its verification state. A
// missing, expired, or tampered cookie yields ErrNoSession; the caller
// treats that as unverified.
func (s *CookieStore) Get(r *http.Request) (Verification, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return Verification{}, ErrNoSession
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil || !token.Valid {
		return Verification{}, ErrNoSession
	}

	return Verification{Verified: claims.Verified, Next: claims.Next}, nil
}

// Put signs the verification state and sets the session cookie
func (s *CookieStore) Put(w http.ResponseWriter, v Verification) error {
	now := time.Now()
	claims := &sessionClaims{
		Verified: v.Verified,
		Next:     v.Next,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return fmt.Errorf("failed to sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Clear deletes the session cookie
func (s *CookieStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
