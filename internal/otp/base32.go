package otp

import (
	"fmt"
	"strings"
)

// base32Alphabet is the standard RFC 4648 alphabet (A-Z, 2-7).
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// ErrInvalidCharacter is returned when decoding input that contains a
// character outside the Base32 alphabet.
type ErrInvalidCharacter struct {
	Char rune
}

func (e *ErrInvalidCharacter) Error() string {
	return fmt.Sprintf("invalid base32 character: %q", e.Char)
}

// EncodeBase32 encodes data using the RFC 4648 Base32 alphabet, padding the
// output with '=' to a multiple of 8 characters. Empty input encodes to "".
func EncodeBase32(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.Grow(((len(data)+4)/5)*8 + 8)

	var buf uint64
	bits := 0

	for _, b := range data {
		buf = buf<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(base32Alphabet[(buf>>bits)&0x1F])
		}
	}

	// Leftover bits are left-aligned into a final symbol.
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(buf<<(5-bits))&0x1F])
	}

	for sb.Len()%8 != 0 {
		sb.WriteByte('=')
	}

	return sb.String()
}

// DecodeBase32 decodes an RFC 4648 Base32 string. Trailing '=' padding is
// ignored and input is folded to upper case before decoding, so unpadded
// lower-case secrets from authenticator apps decode cleanly. Trailing bits
// that cannot complete a full byte are discarded.
func DecodeBase32(encoded string) ([]byte, error) {
	encoded = strings.ToUpper(strings.TrimRight(encoded, "="))
	if encoded == "" {
		return []byte{}, nil
	}

	result := make([]byte, 0, len(encoded)*5/8)

	var buf uint64
	bits := 0

	for _, ch := range encoded {
		idx := strings.IndexRune(base32Alphabet, ch)
		if idx < 0 {
			return nil, &ErrInvalidCharacter{Char: ch}
		}

		buf = buf<<5 | uint64(idx)
		bits += 5
		if bits >= 8 {
			bits -= 8
			result = append(result, byte(buf>>bits))
		}
	}

	return result, nil
}
