package rooms

import "crypto/rand"

// Invite-code alphabet: uppercase letters and digits without the easily
// confused 0/O and 1/I/L pairs, so codes survive being read out loud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const defaultCodeLength = 8

// NewInviteCode returns a cryptographically random invite code of length n.
// If n <= 0, it defaults to 8 characters.
func NewInviteCode(n int) string {
	if n <= 0 {
		n = defaultCodeLength
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// In the extremely rare case rand fails, return an empty string.
		// Callers should treat empty as an error-like condition in logs/tests.
		return ""
	}

	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
