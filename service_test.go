package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/codezest-academy/codezest-auth/cache"
	"github.com/codezest-academy/codezest-auth/config"
	"github.com/codezest-academy/codezest-auth/credential"
	"github.com/codezest-academy/codezest-auth/events"
	"github.com/codezest-academy/codezest-auth/mailer"
	"github.com/codezest-academy/codezest-auth/password"
	"github.com/codezest-academy/codezest-auth/session"
	"github.com/codezest-academy/codezest-auth/store"
	"github.com/codezest-academy/codezest-auth/token"
	"github.com/codezest-academy/codezest-auth/usercache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TestServiceWiringEndToEnd exercises the S1/S2 style flow across engines
// wired the same way New() wires them, using MemoryStore and miniredis in
// place of a live Postgres/Redis (New() itself requires a reachable
// Postgres DSN, so this test composes the pieces directly rather than
// calling New()).
func TestServiceWiringEndToEnd(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	s := store.NewMemoryStore()
	tokens, err := token.NewService("access-secret-0123456789", "refresh-secret-0123456789", time.Minute, time.Hour, "iss", "aud")
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	emitter := events.NewEmitter(events.NoOpSink{})
	sessions := session.New(s, c, tokens, emitter, zap.NewNop())
	userCache := usercache.New(c, s, zap.NewNop())
	cred := credential.New(credential.DefaultConfig(), s, c, password.New(4), sessions, mailer.NoOpMailer{}, emitter, userCache, zap.NewNop())

	ctx := context.Background()
	res, err := cred.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.Pair.AccessToken == "" || res.Pair.RefreshToken == "" {
		t.Fatalf("expected both tokens from register")
	}

	if _, err := cred.Login(ctx, "test@example.com", "Password123!", "", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestConfigAccessSecretResolution(t *testing.T) {
	cfg := &config.Config{AccessTokenSecret: "", JWTAccessSecret: "legacy-secret"}
	if got := cfg.AccessSecret(); got != "legacy-secret" {
		t.Fatalf("expected fallback to JWT_ACCESS_SECRET, got %q", got)
	}
	cfg.AccessTokenSecret = "new-secret"
	if got := cfg.AccessSecret(); got != "new-secret" {
		t.Fatalf("expected ACCESS_TOKEN_SECRET to win, got %q", got)
	}
}
