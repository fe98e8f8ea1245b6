package otp

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBase32_KnownVectors(t *testing.T) {
	// RFC 4648 section 10 test vectors
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"f", "MY======"},
		{"fo", "MZXQ===="},
		{"foo", "MZXW6==="},
		{"foob", "MZXW6YQ="},
		{"fooba", "MZXW6YTB"},
		{"foobar", "MZXW6YTBOI======"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, EncodeBase32([]byte(tt.input)), "input %q", tt.input)
	}
}

func TestDecodeBase32_KnownVectors(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"MY======", "f"},
		{"MZXW6===", "foo"},
		{"MZXW6YTBOI======", "foobar"},
		// Unpadded and lower-case input must decode too
		{"MZXW6YTBOI", "foobar"},
		{"mzxw6ytboi", "foobar"},
	}

	for _, tt := range tests {
		decoded, err := DecodeBase32(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, []byte(tt.expected), decoded, "input %q", tt.input)
	}
}

func TestBase32_RoundTrip(t *testing.T) {
	// Every length 0..64 to cover all padding shapes, with random content
	for size := 0; size <= 64; size++ {
		data := make([]byte, size)
		_, err := rand.Read(data)
		require.NoError(t, err)

		decoded, err := DecodeBase32(EncodeBase32(data))
		require.NoError(t, err)
		assert.Equal(t, data, decoded, "size %d", size)
	}
}

func TestDecodeBase32_InvalidCharacter(t *testing.T) {
	inputs := []string{"MZXW1===", "MZXW6YT!", "0AAAAAAA", "ABC DEF", "ABCDEFG8"}

	for _, input := range inputs {
		_, err := DecodeBase32(input)
		require.Error(t, err, "input %q", input)

		var invalidChar *ErrInvalidCharacter
		assert.ErrorAs(t, err, &invalidChar, "input %q", input)
	}
}

func TestDecodeBase32_PaddingOnly(t *testing.T) {
	decoded, err := DecodeBase32("========")
	require.NoError(t, err)
	assert.Empty(t, decoded)
}
