package session

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests. It keys state on a random
// cookie value so multiple simulated clients can coexist.
type MemoryStore struct {
	cookieName string

	mu       sync.Mutex
	sessions map[string]Verification
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(cookieName string) *MemoryStore {
	return &MemoryStore{
		cookieName: cookieName,
		sessions:   make(map[string]Verification),
	}
}

func (s *MemoryStore) Get(r *http.Request) (Verification, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return Verification{}, ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.sessions[cookie.Value]
	if !ok {
		return Verification{}, ErrNoSession
	}

	return v, nil
}

func (s *MemoryStore) Put(w http.ResponseWriter, v Verification) error {
	id := uuid.New().String()

	s.mu.Lock()
	s.sessions[id] = v
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})

	return nil
}

func (s *MemoryStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   s.cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
