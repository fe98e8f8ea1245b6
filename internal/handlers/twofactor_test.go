package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tannerhall/mantrap/internal/models"
	"github.com/tannerhall/mantrap/internal/otp"
	"github.com/tannerhall/mantrap/internal/services"
	"github.com/tannerhall/mantrap/internal/session"
)

type testEnv struct {
	handler  *TwoFactorHandler
	audit    *AuditHandler
	sessions *session.MemoryStore
	sender   *captureSender
	userID   uuid.UUID
	email    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := newTestLogger()
	profiles := newMemProfileRepo()
	backups := newMemBackupRepo()
	emails := newMemEmailCodeRepo()
	auditRepo := newMemAuditRepo()
	sender := &captureSender{}
	sessions := session.NewMemoryStore("mantrap_2fa")

	auditService := services.NewAuditService(auditRepo, logger)
	twoFactorService := services.NewTwoFactorService(profiles, backups, emails, auditService, logger, services.TwoFactorConfig{
		Issuer:          "News Portal",
		Digits:          6,
		Period:          30,
		VerifyWindow:    1,
		SetupWindow:     2,
		SecretLength:    20,
		BackupCodeCount: 10,
	})
	challengeService := services.NewEmailChallengeService(emails, sender, logger, "https://portal.example.com")

	return &testEnv{
		handler:  NewTwoFactorHandler(twoFactorService, challengeService, sessions, logger, nil, "/panel"),
		audit:    NewAuditHandler(auditService, logger),
		sessions: sessions,
		sender:   sender,
		userID:   uuid.New(),
		email:    "reader@example.com",
	}
}

// enroll walks a user through setup and returns the decoded secret and the
// issued backup codes
func (e *testEnv) enroll(t *testing.T) ([]byte, []string) {
	t.Helper()

	w := httptest.NewRecorder()
	e.handler.Setup(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/setup", nil), e.userID, e.email))

	var setup SetupResponse
	AssertJSONResponse(t, w, http.StatusOK, &setup)

	secret, err := otp.DecodeBase32(setup.Secret)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/setup/verify", VerifySetupRequest{
		Code: otp.GenerateTOTP(secret, 6, 30, time.Now()),
	})
	e.handler.VerifySetup(w, WithIdentity(req, e.userID, e.email))

	var verified VerifySetupResponse
	AssertJSONResponse(t, w, http.StatusOK, &verified)
	require.True(t, verified.Enabled)
	require.Len(t, verified.BackupCodes, 10)

	return secret, verified.BackupCodes
}

func TestSetupReturnsProvisioningMaterial(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.Setup(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/setup", nil), env.userID, env.email))

	var resp SetupResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)

	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.ProvisioningURI, "otpauth://totp/")
	assert.True(t, strings.HasPrefix(resp.QRCode, "data:image/png;base64,"))
}

func TestSetupRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.Setup(w, NewTestRequest(t, http.MethodPost, "/2fa/setup", nil))

	AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestSetupConflictsWhenAlreadyEnabled(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t)

	w := httptest.NewRecorder()
	env.handler.Setup(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/setup", nil), env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

func TestVerifySetupRejectsMalformedCode(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/setup/verify", VerifySetupRequest{Code: "12ab56"})
	env.handler.VerifySetup(w, WithIdentity(req, env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestVerifySetupWrongCode(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.Setup(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/setup", nil), env.userID, env.email))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/setup/verify", VerifySetupRequest{Code: "000000"})
	env.handler.VerifySetup(w, WithIdentity(req, env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusUnauthorized, "invalid_code")
}

func TestVerifyWithTOTP(t *testing.T) {
	env := newTestEnv(t)
	secret, _ := env.enroll(t)

	w := httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{
		Code: otp.GenerateTOTP(secret, 6, 30, time.Now()),
	})
	env.handler.Verify(w, WithIdentity(req, env.userID, env.email))

	var resp VerifyResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)

	assert.True(t, resp.Verified)
	assert.Equal(t, models.MethodTOTP, resp.Method)
	assert.Equal(t, "/panel", resp.Next)
	assert.NotEmpty(t, w.Result().Cookies())
}

func TestVerifyHonorsRequestedNextPath(t *testing.T) {
	env := newTestEnv(t)
	secret, _ := env.enroll(t)

	tests := []struct {
		name     string
		next     string
		wantNext string
	}{
		{"relative path kept", "/panel/articles/42", "/panel/articles/42"},
		{"absolute url rejected", "https://evil.example.com/phish", "/panel"},
		{"scheme relative rejected", "//evil.example.com", "/panel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{
				Code: otp.GenerateTOTP(secret, 6, 30, time.Now()),
				Next: tt.next,
			})
			env.handler.Verify(w, WithIdentity(req, env.userID, env.email))

			var resp VerifyResponse
			AssertJSONResponse(t, w, http.StatusOK, &resp)
			assert.Equal(t, tt.wantNext, resp.Next)
		})
	}
}

func TestVerifyWithBackupCodeIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	_, codes := env.enroll(t)

	w := httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{Code: codes[0]})
	env.handler.Verify(w, WithIdentity(req, env.userID, env.email))

	var resp VerifyResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.MethodBackup, resp.Method)

	w = httptest.NewRecorder()
	req = NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{Code: codes[0]})
	env.handler.Verify(w, WithIdentity(req, env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusUnauthorized, "code_already_used")
}

func TestVerifyWithoutEnrollment(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{Code: "123456"})
	env.handler.Verify(w, WithIdentity(req, env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusForbidden, "two_factor_setup_required")
}

func TestEmailChallengeFlow(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t)

	w := httptest.NewRecorder()
	env.handler.SendEmailChallenge(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/email/send", nil), env.userID, env.email))

	var sent SendEmailChallengeResponse
	AssertJSONResponse(t, w, http.StatusOK, &sent)
	require.True(t, sent.Sent)
	require.Len(t, env.sender.lastCode, 6)
	assert.Equal(t, env.email, env.sender.lastEmail)

	// The emailed digits verify ahead of TOTP.
	w = httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{Code: env.sender.lastCode})
	env.handler.Verify(w, WithIdentity(req, env.userID, env.email))

	var resp VerifyResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.MethodEmail, resp.Method)

	// A consumed challenge cannot be replayed.
	w = httptest.NewRecorder()
	req = NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{Code: env.sender.lastCode})
	env.handler.Verify(w, WithIdentity(req, env.userID, env.email))
	AssertErrorResponse(t, w, http.StatusUnauthorized, "invalid_code")
}

func TestSendEmailChallengeRequiresEnrollment(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.SendEmailChallenge(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/email/send", nil), env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusForbidden, "two_factor_setup_required")
}

func TestSendEmailChallengeReportsDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t)
	env.sender.fail = true

	w := httptest.NewRecorder()
	env.handler.SendEmailChallenge(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/email/send", nil), env.userID, env.email))

	var resp SendEmailChallengeResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.False(t, resp.Sent)
}

func TestMagicLinkRedirectsAndIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t)

	w := httptest.NewRecorder()
	env.handler.SendEmailChallenge(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/email/send", nil), env.userID, env.email))
	require.Equal(t, http.StatusOK, w.Code)

	link, err := url.Parse(env.sender.lastLink)
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/2fa/email/verify?token="+url.QueryEscape(token), nil)
	env.handler.VerifyMagicLink(w, WithIdentity(req, env.userID, env.email))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/panel", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/2fa/email/verify?token="+url.QueryEscape(token), nil)
	env.handler.VerifyMagicLink(w, WithIdentity(req, env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusUnauthorized, "code_already_used")
}

func TestMagicLinkRejectsForeignUser(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t)

	w := httptest.NewRecorder()
	env.handler.SendEmailChallenge(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/email/send", nil), env.userID, env.email))
	require.Equal(t, http.StatusOK, w.Code)

	link, err := url.Parse(env.sender.lastLink)
	require.NoError(t, err)
	token := link.Query().Get("token")

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/2fa/email/verify?token="+url.QueryEscape(token), nil)
	env.handler.VerifyMagicLink(w, WithIdentity(req, uuid.New(), "other@example.com"))

	AssertErrorResponse(t, w, http.StatusUnauthorized, "invalid_code")
}

func TestDisableFlow(t *testing.T) {
	env := newTestEnv(t)
	secret, _ := env.enroll(t)

	w := httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/disable", DisableRequest{
		Code: otp.GenerateTOTP(secret, 6, 30, time.Now()),
	})
	env.handler.Disable(w, WithIdentity(req, env.userID, env.email))

	var resp DisableResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.False(t, resp.Enabled)

	// Verification now routes back to setup.
	w = httptest.NewRecorder()
	req = NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{Code: "123456"})
	env.handler.Verify(w, WithIdentity(req, env.userID, env.email))
	AssertErrorResponse(t, w, http.StatusForbidden, "two_factor_setup_required")
}

func TestDisableRejectsWrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t)

	w := httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/disable", DisableRequest{Code: "000000"})
	env.handler.Disable(w, WithIdentity(req, env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusUnauthorized, "invalid_code")
}

func TestRegenerateBackupCodesInvalidatesOldBatch(t *testing.T) {
	env := newTestEnv(t)
	_, oldCodes := env.enroll(t)

	w := httptest.NewRecorder()
	env.handler.RegenerateBackupCodes(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/backup-codes/regenerate", nil), env.userID, env.email))

	var resp RegenerateBackupCodesResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp.BackupCodes, 10)
	assert.NotEqual(t, oldCodes, resp.BackupCodes)

	// Old codes are void.
	w = httptest.NewRecorder()
	req := NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{Code: oldCodes[0]})
	env.handler.Verify(w, WithIdentity(req, env.userID, env.email))
	AssertErrorResponse(t, w, http.StatusUnauthorized, "invalid_code")
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.Status(w, WithIdentity(NewTestRequest(t, http.MethodGet, "/2fa/status", nil), env.userID, env.email))

	var before models.TwoFactorStatus
	AssertJSONResponse(t, w, http.StatusOK, &before)
	assert.False(t, before.Enabled)

	env.enroll(t)

	w = httptest.NewRecorder()
	env.handler.Status(w, WithIdentity(NewTestRequest(t, http.MethodGet, "/2fa/status", nil), env.userID, env.email))

	var after models.TwoFactorStatus
	AssertJSONResponse(t, w, http.StatusOK, &after)
	assert.True(t, after.Enabled)
	assert.Equal(t, 10, after.UnusedBackupCodes)
}

func TestAuditTrailListsAttempts(t *testing.T) {
	env := newTestEnv(t)
	secret, _ := env.enroll(t)

	// One failure, one success on top of the setup verification.
	w := httptest.NewRecorder()
	env.handler.Verify(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{Code: "000000"}), env.userID, env.email))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	env.handler.Verify(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{
		Code: otp.GenerateTOTP(secret, 6, 30, time.Now()),
	}), env.userID, env.email))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	env.audit.Recent(w, WithIdentity(NewTestRequest(t, http.MethodGet, "/2fa/audit", nil), env.userID, env.email))

	var trail AuditTrailResponse
	AssertJSONResponse(t, w, http.StatusOK, &trail)
	require.Len(t, trail.Entries, 3)

	methods := map[string]int{}
	successes := 0
	for _, e := range trail.Entries {
		methods[e.Method]++
		if e.Success {
			successes++
		}
	}
	assert.Equal(t, 3, methods[models.MethodTOTP])
	assert.Equal(t, 2, successes)
}

func TestAuditTrailRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.audit.Recent(w, WithIdentity(NewTestRequest(t, http.MethodGet, "/2fa/audit?limit=abc", nil), env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestRegenerateSecretRotatesAndDisables(t *testing.T) {
	env := newTestEnv(t)
	oldSecret, _ := env.enroll(t)

	w := httptest.NewRecorder()
	env.handler.RegenerateSecret(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/secret/regenerate", nil), env.userID, env.email))

	var resp SetupResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)

	newSecret, err := otp.DecodeBase32(resp.Secret)
	require.NoError(t, err)
	require.NotEqual(t, oldSecret, newSecret)

	// The profile dropped to disabled; codes from the old secret are dead.
	w = httptest.NewRecorder()
	env.handler.Verify(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/verify", VerifyRequest{
		Code: otp.GenerateTOTP(oldSecret, 6, 30, time.Now()),
	}), env.userID, env.email))
	AssertErrorResponse(t, w, http.StatusForbidden, "two_factor_setup_required")

	// Verifying the new secret re-enables.
	w = httptest.NewRecorder()
	env.handler.VerifySetup(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/setup/verify", VerifySetupRequest{
		Code: otp.GenerateTOTP(newSecret, 6, 30, time.Now()),
	}), env.userID, env.email))

	var verified VerifySetupResponse
	AssertJSONResponse(t, w, http.StatusOK, &verified)
	assert.True(t, verified.Enabled)
}

func TestRegenerateSecretWithoutEnrollment(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.handler.RegenerateSecret(w, WithIdentity(NewTestRequest(t, http.MethodPost, "/2fa/secret/regenerate", nil), env.userID, env.email))

	AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}
