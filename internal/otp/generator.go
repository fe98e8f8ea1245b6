package otp

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultSecretLength is the recommended shared-secret size: 160 bits,
// matching the HMAC-SHA1 block RFC 4226 section 4 calls for.
const DefaultSecretLength = 20

// GenerateSecret returns n cryptographically secure random bytes for use as a
// shared OTP secret. n <= 0 falls back to DefaultSecretLength.
func GenerateSecret(n int) ([]byte, error) {
	if n <= 0 {
		n = DefaultSecretLength
	}

	secret := make([]byte, n)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, nil
}

// GenerateBackupCodes produces count single-use recovery codes, each length
// upper-case hex characters formatted as dash-joined groups of four
// (e.g. "3F9A-C04D"). Codes are unique within the batch; a collision inside
// the batch is retried rather than failing the whole generation.
func GenerateBackupCodes(count, length int) ([]string, error) {
	if count <= 0 {
		count = 10
	}
	if length <= 0 {
		length = 8
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	for len(codes) < count {
		raw := make([]byte, (length+1)/2)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}

		code := formatBackupCode(strings.ToUpper(hex.EncodeToString(raw))[:length])
		if _, dup := seen[code]; dup {
			continue
		}

		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	return codes, nil
}

// formatBackupCode inserts a dash after every group of four characters.
func formatBackupCode(s string) string {
	var sb strings.Builder
	for i, ch := range s {
		if i > 0 && i%4 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

// GenerateNumericCode returns a random decimal code of exactly digits
// characters, drawn from crypto/rand with rejection sampling so every value
// is equally likely.
func GenerateNumericCode(digits int) (string, error) {
	if digits <= 0 {
		digits = DefaultDigits
	}

	bound := uint64(1)
	for i := 0; i < digits; i++ {
		bound *= 10
	}

	// Rejection threshold: largest multiple of bound that fits in a uint64.
	limit := (^uint64(0) / bound) * bound

	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("failed to generate numeric code: %w", err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < limit {
			return fmt.Sprintf("%0*d", digits, v%bound), nil
		}
	}
}

// GenerateToken returns a URL-safe, unpadded base64 token of n random bytes,
// suitable for magic-link style opaque credentials.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = 32
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
