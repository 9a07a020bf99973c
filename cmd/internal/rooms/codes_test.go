package rooms

import (
	"strings"
	"testing"
)

func TestNewInviteCode(t *testing.T) {
	t.Parallel()

	code := NewInviteCode(defaultCodeLength)
	if len(code) != defaultCodeLength {
		t.Fatalf("expected %d characters, got %q", defaultCodeLength, code)
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("code %q contains %q outside the alphabet", code, r)
		}
	}

	if got := NewInviteCode(0); len(got) != defaultCodeLength {
		t.Fatalf("expected default length for n=0, got %q", got)
	}
}

func TestNewInviteCodeVaries(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		seen[NewInviteCode(defaultCodeLength)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected distinct codes across generations, got %d unique", len(seen))
	}
}
