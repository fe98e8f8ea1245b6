package otp

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultPeriod is the standard TOTP time step in seconds.
const DefaultPeriod = 30

// TOTPCounter derives the HOTP counter for a moment in time: the number of
// whole periods elapsed since the Unix epoch.
func TOTPCounter(t time.Time, period int) uint64 {
	if period <= 0 {
		period = DefaultPeriod
	}
	return uint64(t.Unix() / int64(period))
}

// GenerateTOTP computes the TOTP code for the given moment.
func GenerateTOTP(secret []byte, digits, period int, t time.Time) string {
	return GenerateHOTP(secret, TOTPCounter(t, period), digits)
}

// VerifyTOTP checks a candidate code against the time-derived counter with a
// symmetric window: counters counter-window..counter+window are all accepted,
// absorbing clock skew in either direction (unlike HOTP's forward-only
// look-ahead).
func VerifyTOTP(secret []byte, candidate string, period, window int, t time.Time) bool {
	if candidate == "" {
		return false
	}

	counter := TOTPCounter(t, period)
	for i := -window; i <= window; i++ {
		c := int64(counter) + int64(i)
		if c < 0 {
			continue
		}
		if GenerateHOTP(secret, uint64(c), len(candidate)) == candidate {
			return true
		}
	}
	return false
}

// ProvisioningURI builds the otpauth:// URI that authenticator apps consume
// via QR code. The issuer and account are percent-encoded individually so the
// colon separating them in the label stays literal, and the Base32 secret is
// emitted without padding, which is what the apps expect.
func ProvisioningURI(secret []byte, account, issuer string, digits, period int) string {
	if digits <= 0 {
		digits = DefaultDigits
	}
	if period <= 0 {
		period = DefaultPeriod
	}

	secretB32 := strings.TrimRight(EncodeBase32(secret), "=")
	encodedIssuer := percentEncode(issuer)
	encodedAccount := percentEncode(account)

	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&digits=%d&period=%d",
		encodedIssuer, encodedAccount, secretB32, encodedIssuer, digits, period)
}

// percentEncode escapes a label component. QueryEscape renders spaces as '+',
// which authenticator apps do not decode inside the label, so those are
// rewritten to %20.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
