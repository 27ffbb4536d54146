package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/codezest-academy/codezest-auth/store"
	"go.uber.org/zap"
)

func TestSweepOnceDeletesExpiredRows(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	u := &store.User{Email: "a@example.com", FirstName: "A", LastName: "B", Role: store.RoleUser, IsActive: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	expired := &store.Session{UserID: u.ID, Token: "expired-token", ExpiresAt: time.Now().Add(-time.Hour)}
	live := &store.Session{UserID: u.ID, Token: "live-token", ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.CreateSession(ctx, expired); err != nil {
		t.Fatalf("seed expired session: %v", err)
	}
	if err := s.CreateSession(ctx, live); err != nil {
		t.Fatalf("seed live session: %v", err)
	}

	expiredReset := &store.PasswordReset{UserID: u.ID, Token: "expired-reset", ExpiresAt: time.Now().Add(-time.Hour)}
	if err := s.CreatePasswordReset(ctx, expiredReset); err != nil {
		t.Fatalf("seed expired reset: %v", err)
	}

	sw := New(s, time.Hour, zap.NewNop())
	sw.sweepOnce(ctx)

	sessions, err := s.ListSessionsByUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Token != "live-token" {
		t.Fatalf("expected only the live session to survive, got %+v", sessions)
	}

	if _, err := s.GetPasswordResetByToken(ctx, "expired-reset"); err != store.ErrNotFound {
		t.Fatalf("expected expired reset to be swept, got %v", err)
	}
}
