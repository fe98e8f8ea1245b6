// Package otp implements the HOTP (RFC 4226) and TOTP (RFC 6238) one-time
// password algorithms directly on top of crypto/hmac, together with the
// RFC 4648 Base32 codec used to serialize shared secrets. No third-party OTP
// library is involved; the pquerna/otp module is used only by the tests as an
// interoperability oracle.
package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// DefaultDigits is the standard OTP length.
const DefaultDigits = 6

// GenerateHOTP computes the RFC 4226 HOTP value for a secret and counter,
// rendered as a zero-padded decimal string of exactly digits characters.
func GenerateHOTP(secret []byte, counter uint64, digits int) string {
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(counterBytes[:])
	sum := mac.Sum(nil)

	code := dynamicTruncate(sum)

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, code%mod)
}

// dynamicTruncate extracts a 31-bit integer from an HMAC-SHA1 digest as
// described in RFC 4226 section 5.3: the low nibble of the final byte selects
// a 4-byte big-endian window, whose top bit is cleared.
func dynamicTruncate(sum []byte) uint32 {
	offset := sum[len(sum)-1] & 0x0F
	return binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF
}

// VerifyHOTP checks a candidate code against the counter with a forward-only
// look-ahead window: counters counter..counter+window inclusive are accepted.
// The generated digit count follows the candidate's length so that 6-, 7- and
// 8-digit tokens all compare correctly.
func VerifyHOTP(secret []byte, candidate string, counter uint64, window uint64) bool {
	if candidate == "" {
		return false
	}

	for i := uint64(0); i <= window; i++ {
		if GenerateHOTP(secret, counter+i, len(candidate)) == candidate {
			return true
		}
	}
	return false
}
