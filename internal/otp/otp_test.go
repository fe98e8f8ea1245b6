package otp

import (
	"testing"
	"time"

	pqotp "github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rfcSecret is the shared secret from RFC 4226 Appendix D.
var rfcSecret = []byte("12345678901234567890")

func TestGenerateHOTP_RFC4226Vectors(t *testing.T) {
	expected := []string{
		"755224", "287082", "359152", "969429", "338314",
		"254676", "287922", "162583", "399871", "520489",
	}

	for counter, want := range expected {
		got := GenerateHOTP(rfcSecret, uint64(counter), 6)
		assert.Equal(t, want, got, "counter %d", counter)
	}
}

func TestGenerateHOTP_ZeroPadding(t *testing.T) {
	// Codes must always render to exactly the requested width
	for counter := uint64(0); counter < 200; counter++ {
		code := GenerateHOTP(rfcSecret, counter, 6)
		assert.Len(t, code, 6, "counter %d", counter)
	}
}

func TestGenerateHOTP_EightDigits(t *testing.T) {
	code := GenerateHOTP(rfcSecret, 0, 8)
	assert.Len(t, code, 8)
	// The low 6 digits match the 6-digit rendering of the same counter
	assert.Equal(t, "755224", code[2:])
}

func TestVerifyHOTP_ForwardWindowOnly(t *testing.T) {
	const counter = uint64(10)

	current := GenerateHOTP(rfcSecret, counter, 6)
	next := GenerateHOTP(rfcSecret, counter+1, 6)
	previous := GenerateHOTP(rfcSecret, counter-1, 6)

	assert.True(t, VerifyHOTP(rfcSecret, current, counter, 1))
	assert.True(t, VerifyHOTP(rfcSecret, next, counter, 1))

	// Look-ahead only: a code from the previous counter is rejected
	assert.False(t, VerifyHOTP(rfcSecret, previous, counter, 1))

	// Beyond the window
	future := GenerateHOTP(rfcSecret, counter+2, 6)
	assert.False(t, VerifyHOTP(rfcSecret, future, counter, 1))
}

func TestVerifyHOTP_EmptyCandidate(t *testing.T) {
	assert.False(t, VerifyHOTP(rfcSecret, "", 0, 1))
}

func TestTOTPCounter(t *testing.T) {
	assert.Equal(t, uint64(0), TOTPCounter(time.Unix(0, 0), 30))
	assert.Equal(t, uint64(0), TOTPCounter(time.Unix(29, 0), 30))
	assert.Equal(t, uint64(1), TOTPCounter(time.Unix(30, 0), 30))
	assert.Equal(t, uint64(1111111111/30), TOTPCounter(time.Unix(1111111111, 0), 30))
}

func TestGenerateTOTP_Deterministic(t *testing.T) {
	at := time.Unix(1700000000, 0)

	first := GenerateTOTP(rfcSecret, 6, 30, at)
	second := GenerateTOTP(rfcSecret, 6, 30, at)
	assert.Equal(t, first, second)

	// Same 30s step: identical code
	assert.Equal(t, first, GenerateTOTP(rfcSecret, 6, 30, at.Add(29*time.Second)))
}

func TestGenerateTOTP_RFC6238Vectors(t *testing.T) {
	// RFC 6238 Appendix B SHA-1 rows, truncated to 6 digits
	tests := []struct {
		unix     int64
		expected string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, tt := range tests {
		got := GenerateTOTP(rfcSecret, 6, 30, time.Unix(tt.unix, 0))
		assert.Equal(t, tt.expected, got, "t=%d", tt.unix)
	}
}

func TestVerifyTOTP_SymmetricWindow(t *testing.T) {
	at := time.Unix(1700000000, 0)
	code := GenerateTOTP(rfcSecret, 6, 30, at)

	// Accepted one step in either direction
	assert.True(t, VerifyTOTP(rfcSecret, code, 30, 1, at))
	assert.True(t, VerifyTOTP(rfcSecret, code, 30, 1, at.Add(30*time.Second)))
	assert.True(t, VerifyTOTP(rfcSecret, code, 30, 1, at.Add(-30*time.Second)))

	// Rejected two steps away
	assert.False(t, VerifyTOTP(rfcSecret, code, 30, 1, at.Add(60*time.Second)))
	assert.False(t, VerifyTOTP(rfcSecret, code, 30, 1, at.Add(-60*time.Second)))
}

func TestVerifyTOTP_EndToEndSteps(t *testing.T) {
	secret, err := GenerateSecret(20)
	require.NoError(t, err)

	at := time.Unix(1755000000, 0).Truncate(30 * time.Second)
	code := GenerateTOTP(secret, 6, 30, at)

	assert.True(t, VerifyTOTP(secret, code, 30, 1, at))
	assert.True(t, VerifyTOTP(secret, code, 30, 1, at.Add(29*time.Second)))
	assert.False(t, VerifyTOTP(secret, code, 30, 1, at.Add(90*time.Second)))
}

// Interop: codes produced here must validate with pquerna/otp, and codes
// produced by pquerna/otp must validate here.
func TestTOTP_InteropWithPquerna(t *testing.T) {
	secret, err := GenerateSecret(20)
	require.NoError(t, err)

	secretB32 := EncodeBase32(secret) // 20 bytes -> 32 chars, no padding
	at := time.Unix(1720000000, 0)

	opts := pqtotp.ValidateOpts{
		Period:    30,
		Skew:      0,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	}

	ours := GenerateTOTP(secret, 6, 30, at)
	valid, err := pqtotp.ValidateCustom(ours, secretB32, at, opts)
	require.NoError(t, err)
	assert.True(t, valid, "pquerna rejected our code %s", ours)

	theirs, err := pqtotp.GenerateCodeCustom(secretB32, at, opts)
	require.NoError(t, err)
	assert.True(t, VerifyTOTP(secret, theirs, 30, 0, at), "we rejected pquerna code %s", theirs)
}

func TestProvisioningURI(t *testing.T) {
	uri := ProvisioningURI(rfcSecret, "user@example.com", "News Portal", 6, 30)

	assert.Equal(t,
		"otpauth://totp/News%20Portal:user%40example.com?secret=GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ&issuer=News%20Portal&digits=6&period=30",
		uri)
}

func TestProvisioningURI_Defaults(t *testing.T) {
	uri := ProvisioningURI(rfcSecret, "alice", "Mantrap", 0, 0)
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
	assert.NotContains(t, uri, "=GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ=", "secret must be unpadded")
}

func TestGenerateSecret_Randomness(t *testing.T) {
	a, err := GenerateSecret(20)
	require.NoError(t, err)
	b, err := GenerateSecret(20)
	require.NoError(t, err)

	assert.Len(t, a, 20)
	assert.Len(t, b, 20)
	assert.NotEqual(t, a, b)
}

func TestGenerateSecret_DefaultLength(t *testing.T) {
	s, err := GenerateSecret(0)
	require.NoError(t, err)
	assert.Len(t, s, DefaultSecretLength)
}
