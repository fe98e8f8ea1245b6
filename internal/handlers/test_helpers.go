package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/tannerhall/mantrap/internal/auth"
	"github.com/tannerhall/mantrap/internal/models"
	pkghttp "github.com/tannerhall/mantrap/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithIdentity adds a caller identity to the request context
func WithIdentity(req *http.Request, userID uuid.UUID, email string) *http.Request {
	identity := &auth.Identity{UserID: userID, Email: email}
	ctx := context.WithValue(req.Context(), auth.IdentityContextKey, identity)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// newTestLogger returns a logger that discards output
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// In-memory repository fakes. Handler tests run whole flows through real
// services, so these keep enough state for setup, verify, and disable to
// interact the way the database would.

type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.TwoFactorProfile // keyed by user ID
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: make(map[uuid.UUID]*models.TwoFactorProfile)}
}

func (r *memProfileRepo) Create(ctx context.Context, userID uuid.UUID, secretKey string) (*models.TwoFactorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[userID]; ok {
		return nil, models.ErrConflict
	}
	p := &models.TwoFactorProfile{
		ID:        uuid.New(),
		UserID:    userID,
		SecretKey: secretKey,
		CreatedAt: time.Now(),
	}
	r.profiles[userID] = p
	return p, nil
}

func (r *memProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProfileRepo) GetEnabledByUserID(ctx context.Context, userID uuid.UUID) (*models.TwoFactorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok || !p.Enabled {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProfileRepo) byID(profileID uuid.UUID) *models.TwoFactorProfile {
	for _, p := range r.profiles {
		if p.ID == profileID {
			return p
		}
	}
	return nil
}

func (r *memProfileRepo) UpdateSecret(ctx context.Context, profileID uuid.UUID, secretKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.byID(profileID)
	if p == nil {
		return models.ErrNotFound
	}
	p.SecretKey = secretKey
	p.Enabled = false
	p.LastUsedAt = nil
	return nil
}

func (r *memProfileRepo) SetEnabled(ctx context.Context, profileID uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.byID(profileID)
	if p == nil {
		return models.ErrNotFound
	}
	p.Enabled = enabled
	return nil
}

func (r *memProfileRepo) UpdateLastUsedAt(ctx context.Context, profileID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.byID(profileID)
	if p == nil {
		return models.ErrNotFound
	}
	now := time.Now()
	p.LastUsedAt = &now
	return nil
}

func (r *memProfileRepo) Delete(ctx context.Context, profileID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, p := range r.profiles {
		if p.ID == profileID {
			delete(r.profiles, userID)
			return nil
		}
	}
	return models.ErrNotFound
}

type memBackupRepo struct {
	mu    sync.Mutex
	codes map[uuid.UUID][]*models.BackupCode // keyed by profile ID
}

func newMemBackupRepo() *memBackupRepo {
	return &memBackupRepo{codes: make(map[uuid.UUID][]*models.BackupCode)}
}

func (r *memBackupRepo) ReplaceBatch(ctx context.Context, profileID uuid.UUID, codes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := make([]*models.BackupCode, len(codes))
	for i, code := range codes {
		batch[i] = &models.BackupCode{
			ID:        uuid.New(),
			ProfileID: profileID,
			Code:      code,
			CreatedAt: time.Now(),
		}
	}
	r.codes[profileID] = batch
	return nil
}

func (r *memBackupRepo) Consume(ctx context.Context, profileID uuid.UUID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes[profileID] {
		if c.Code == code {
			if c.UsedAt != nil {
				return models.ErrCodeAlreadyUsed
			}
			now := time.Now()
			c.UsedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *memBackupRepo) CountUnused(ctx context.Context, profileID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, c := range r.codes[profileID] {
		if c.UsedAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *memBackupRepo) DeleteByProfileID(ctx context.Context, profileID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, profileID)
	return nil
}

type memEmailCodeRepo struct {
	mu         sync.Mutex
	challenges []*models.EmailVerificationCode
}

func newMemEmailCodeRepo() *memEmailCodeRepo {
	return &memEmailCodeRepo{}
}

func (r *memEmailCodeRepo) Create(ctx context.Context, code *models.EmailVerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	code.ID = uuid.New()
	code.CreatedAt = time.Now()
	cp := *code
	r.challenges = append(r.challenges, &cp)
	return nil
}

func (r *memEmailCodeRepo) GetUnusedByUserAndCode(ctx context.Context, userID uuid.UUID, code string) (*models.EmailVerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var newest *models.EmailVerificationCode
	for _, c := range r.challenges {
		if c.UserID == userID && c.Code == code && c.UsedAt == nil {
			if newest == nil || c.CreatedAt.After(newest.CreatedAt) {
				newest = c
			}
		}
	}
	if newest == nil {
		return nil, models.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (r *memEmailCodeRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.TokenHash == tokenHash {
			cp := *c
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memEmailCodeRepo) Consume(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.ID == id {
			if c.UsedAt != nil {
				return models.ErrCodeAlreadyUsed
			}
			now := time.Now()
			c.UsedAt = &now
			return nil
		}
	}
	return models.ErrCodeAlreadyUsed
}

func (r *memEmailCodeRepo) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.challenges[:0]
	for _, c := range r.challenges {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	r.challenges = kept
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLogEntry
}

func newMemAuditRepo() *memAuditRepo {
	return &memAuditRepo{}
}

func (r *memAuditRepo) Create(ctx context.Context, entry *models.AuditLogEntry) (*models.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()
	cp := *entry
	r.entries = append(r.entries, &cp)
	return entry, nil
}

func (r *memAuditRepo) RecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLogEntry
	for _, e := range r.entries {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// captureSender records outgoing challenge emails instead of sending them
type captureSender struct {
	mu        sync.Mutex
	lastCode  string
	lastLink  string
	lastEmail string
	fail      bool
}

func (s *captureSender) SendChallenge(ctx context.Context, email, code, magicLink string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.lastEmail, s.lastCode, s.lastLink = email, code, magicLink
	return nil
}
