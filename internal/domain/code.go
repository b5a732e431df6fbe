package domain

import (
	"crypto/rand"
	"strings"
)

// SessionCodeChars are characters used for session codes (no ambiguous chars)
const SessionCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultSessionCodeLength is the code length used when none is configured
const DefaultSessionCodeLength = 4

// SessionCode identifies a game session on the relay
type SessionCode string

func (c SessionCode) String() string {
	return string(c)
}

// GenerateSessionCode returns a random code of the given length. There is no
// collision check; relay rooms are created idempotently per code.
func GenerateSessionCode(length int) SessionCode {
	if length <= 0 {
		length = DefaultSessionCodeLength
	}

	// len(SessionCodeChars) divides 256, so the modulo keeps selection uniform.
	b := make([]byte, length)
	rand.Read(b)

	code := make([]byte, length)
	for i := range code {
		code[i] = SessionCodeChars[int(b[i])%len(SessionCodeChars)]
	}

	return SessionCode(code)
}

// NormalizeSessionCode trims and upper-cases a typed code
func NormalizeSessionCode(s string) SessionCode {
	return SessionCode(strings.ToUpper(strings.TrimSpace(s)))
}

// ValidSessionCode reports whether code has the expected length and only uses
// the restricted alphabet
func ValidSessionCode(code SessionCode, length int) bool {
	if length <= 0 {
		length = DefaultSessionCodeLength
	}
	if len(code) != length {
		return false
	}
	for _, r := range string(code) {
		if !strings.ContainsRune(SessionCodeChars, r) {
			return false
		}
	}
	return true
}
