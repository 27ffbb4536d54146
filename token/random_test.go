package token

import "testing"

func TestRandomTokenIsUniqueAndURLSafe(t *testing.T) {
	a, err := RandomToken()
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	b, err := RandomToken()
	if err != nil {
		t.Fatalf("RandomToken: %v", err)
	}
	if a == b {
		t.Fatalf("expected two distinct random tokens")
	}
	for _, r := range a {
		if r == '+' || r == '/' || r == '=' {
			t.Fatalf("expected url-safe encoding, got char %q in %q", r, a)
		}
	}
}
