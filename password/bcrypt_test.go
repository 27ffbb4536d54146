package password

import "testing"

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h := New(MinCost)
	hashed, err := h.Hash("Password123!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Verify(hashed, "Password123!") {
		t.Fatalf("expected Verify to accept the correct plaintext")
	}
	if h.Verify(hashed, "WrongPassword1!") {
		t.Fatalf("expected Verify to reject the wrong plaintext")
	}
}

func TestNewClampsCostToDefault(t *testing.T) {
	h := New(4)
	if h.cost != DefaultCost {
		t.Fatalf("expected cost below MinCost to clamp to DefaultCost, got %d", h.cost)
	}
}

func TestHashRejectsOverlongPlaintext(t *testing.T) {
	h := New(MinCost)
	long := make([]byte, 73)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := h.Hash(string(long)); err != ErrTooLong {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestMeetsPolicy(t *testing.T) {
	cases := map[string]bool{
		"Password123!": true,
		"short1!":      false,
		"nouppercase1!": false,
		"NOLOWERCASE1!": false,
		"NoDigitsHere!": false,
		"NoSymbols123":  false,
	}
	for pw, want := range cases {
		if got := MeetsPolicy(pw); got != want {
			t.Errorf("MeetsPolicy(%q) = %v, want %v", pw, got, want)
		}
	}
}
