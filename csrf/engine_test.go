package csrf

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/codezest-academy/codezest-auth/apperr"
	"github.com/codezest-academy/codezest-auth/cache"
	"github.com/redis/go-redis/v9"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return New(c)
}

func TestGenerateAndValidateRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tok, err := e.GenerateToken(ctx)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected a non-empty token")
	}
	if err := e.ValidateToken(ctx, tok); err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
}

func TestValidateTokenRejectsUnknownToken(t *testing.T) {
	e := newTestEngine(t)
	err := e.ValidateToken(context.Background(), "never-issued")
	ae, ok := apperr.AsError(err)
	if !ok || ae.Kind != apperr.KindForbidden {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}
