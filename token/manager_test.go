package token

import (
	"testing"
	"time"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	m, err := NewManager(Config{Secret: "0123456789abcdef", TTL: time.Minute, Issuer: "iss", Audience: "aud"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tok, err := m.Issue("user-1", "a@example.com", "user", "fam-1", "sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" || claims.FamilyID != "fam-1" || claims.SessionID != "sess-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, err := NewManager(Config{Secret: "0123456789abcdef", TTL: time.Minute, Issuer: "iss", Audience: "aud"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	// NewManager rejects a non-positive TTL, so set it directly to issue
	// a token that is already expired.
	m.ttl = -time.Minute
	tok, err := m.Issue("user-1", "a@example.com", "user", "fam-1", "sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(tok); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m1, _ := NewManager(Config{Secret: "0123456789abcdef", TTL: time.Minute, Issuer: "iss", Audience: "aud"})
	m2, _ := NewManager(Config{Secret: "fedcba9876543210", TTL: time.Minute, Issuer: "iss", Audience: "aud"})
	tok, err := m1.Issue("user-1", "a@example.com", "user", "fam-1", "sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m2.Verify(tok); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	m1, _ := NewManager(Config{Secret: "0123456789abcdef", TTL: time.Minute, Issuer: "iss-a", Audience: "aud"})
	m2, _ := NewManager(Config{Secret: "0123456789abcdef", TTL: time.Minute, Issuer: "iss-b", Audience: "aud"})
	tok, err := m1.Issue("user-1", "a@example.com", "user", "fam-1", "sess-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m2.Verify(tok); err != ErrBadIssuer {
		t.Fatalf("expected ErrBadIssuer, got %v", err)
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewManager(Config{Secret: "short", TTL: time.Minute, Issuer: "iss", Audience: "aud"}); err == nil {
		t.Fatalf("expected error for short secret")
	}
}

func TestNewServiceIssuesDistinctSignedPair(t *testing.T) {
	svc, err := NewService("0123456789abcdef", "fedcba9876543210", time.Minute, time.Hour, "iss", "aud")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	pair, err := svc.IssuePair("user-1", "a@example.com", "user", "fam-1", "sess-1")
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatalf("access and refresh tokens must differ (different secrets)")
	}
	if _, err := svc.Access.Verify(pair.RefreshToken); err != ErrBadSignature {
		t.Fatalf("refresh token must not verify against the access secret")
	}
}
