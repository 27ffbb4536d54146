package credential

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/codezest-academy/codezest-auth/apperr"
	"github.com/codezest-academy/codezest-auth/cache"
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

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	tokens, err := token.NewService("access-secret-0123456789", "refresh-secret-0123456789", time.Minute, time.Hour, "iss", "aud")
	if err != nil {
		t.Fatalf("token service: %v", err)
	}

	s := store.NewMemoryStore()
	emitter := events.NewEmitter(events.NoOpSink{})
	sessions := session.New(s, c, tokens, emitter, zap.NewNop())

	cfg := DefaultConfig()
	cfg.LockoutCounterWindow = time.Hour
	uc := usercache.New(c, s, zap.NewNop())
	return New(cfg, s, c, password.New(4), sessions, mailer.NoOpMailer{}, emitter, uc, zap.NewNop())
}

func TestRegisterThenDuplicateConflicts(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.Email != "test@example.com" || res.Pair.AccessToken == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	_, err = e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil)
	ae, ok := apperr.AsError(err)
	if !ok || ae.Kind != apperr.KindConflict {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestLoginGoodThenBad(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := e.Login(ctx, "test@example.com", "Password123!", "", ""); err != nil {
		t.Fatalf("login should succeed: %v", err)
	}
	if _, err := e.Login(ctx, "test@example.com", "WrongPassword123!", "", ""); err == nil {
		t.Fatalf("expected login failure")
	}
}

func TestLoginErrorIsUniformForMissingUserAndWrongPassword(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, errNoUser := e.Login(ctx, "nobody@example.com", "Password123!", "", "")
	_, errWrongPw := e.Login(ctx, "test@example.com", "WrongPassword123!", "", "")
	if errNoUser.Error() != errWrongPw.Error() {
		t.Fatalf("login errors must not distinguish missing user from wrong password: %q vs %q", errNoUser, errWrongPw)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 5; i++ {
		_, _ = e.Login(ctx, "test@example.com", "WrongPassword123!", "", "")
	}

	// Sixth attempt, even with the correct password, must fail locked.
	if _, err := e.Login(ctx, "test@example.com", "Password123!", "", ""); err == nil {
		t.Fatalf("expected account to be locked")
	}
}

// TestFifthFailureSurfacesLockedMessageImmediately is the literal
// testable property spec.md §8 S3 names: the failed login that trips the
// lock must itself return the locked message, not just the next one.
func TestFifthFailureSurfacesLockedMessageImmediately(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = e.Login(ctx, "test@example.com", "WrongPassword123!", "", "")
	}
	if lastErr == nil {
		t.Fatalf("expected the fifth attempt to fail")
	}
	ae, ok := apperr.AsError(lastErr)
	if !ok || ae.Kind != apperr.KindUnauthorized {
		t.Fatalf("expected Unauthorized, got %v", lastErr)
	}
	if !strings.Contains(lastErr.Error(), "locked") {
		t.Fatalf("expected the fifth attempt's error to mention the lock, got %q", lastErr.Error())
	}
}

// TestConcurrentFailedLoginsNeverLoseAnIncrement guards the compare-and-
// swap wiring behind handleFailedLogin (spec.md §5): N concurrent failed
// logins from below the threshold must never under-count.
func TestConcurrentFailedLoginsNeverLoseAnIncrement(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.LockoutMaxAttempts = 1000 // stay unlocked for the whole race
	ctx := context.Background()
	if _, err := e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Login(ctx, "test@example.com", "WrongPassword123!", "", "")
		}()
	}
	wg.Wait()

	var rec lockoutRecord
	if err := e.cache.GetJSON(ctx, cache.LoginAttemptsKey("test@example.com"), &rec); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if rec.Attempts != n {
		t.Fatalf("expected no lost increments, got %d want %d", rec.Attempts, n)
	}
}

func TestResetPasswordRejectsUnknownToken(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := e.RequestPasswordReset(ctx, "test@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if err := e.ResetPassword(ctx, "not-a-real-token", "NewPassword123!"); err == nil {
		t.Fatalf("expected invalid token to fail")
	}
}

func TestRequestPasswordResetNeverRevealsUnknownEmail(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("request reset for unknown email must still succeed: %v", err)
	}
}

func TestVerifyEmailIsSingleUse(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	res, err := e.Register(ctx, "test@example.com", "Password123!", "Test", "User", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	verifications, err := listVerifications(ctx, e.store, res.User.ID)
	if err != nil || len(verifications) == 0 {
		t.Fatalf("expected a verification row: %v", err)
	}
	tok := verifications[0]

	if err := e.VerifyEmail(ctx, tok); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := e.VerifyEmail(ctx, tok); err == nil {
		t.Fatalf("second verification attempt must fail")
	}
}

// listVerifications is a small test-only helper that walks the store's
// interface surface to find the verification token created during
// Register, since Store intentionally exposes no "list all" method.
func listVerifications(ctx context.Context, s store.Store, userID string) ([]string, error) {
	mem, ok := s.(*store.MemoryStore)
	if !ok {
		return nil, nil
	}
	return mem.DebugVerificationTokensForUser(ctx, userID)
}
