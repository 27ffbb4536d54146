// Package credential implements the Credential Engine of spec.md §4.2:
// registration, login, password change/reset, and email verification,
// owning the lockout counter and the verification/reset token
// lifecycles.
//
// The lockout record's shape is grounded on the teacher's
// internal/limiters/lockout.go, generalized from a plain integer counter
// keyed by userID to the two-tier {attempts, lockedUntil?} JSON record
// keyed by email that spec.md §3/§4.2 specifies; because two concurrent
// failed logins must never race each other into losing an increment
// (spec.md §5), the update itself runs through cache.CompareAndSwapJSON,
// grounded on the teacher's reset_store.go WATCH/TxPipelined retry loop,
// rather than lockout.go's plain INCR (a single counter can't also carry
// the lockedUntil timestamp atomically).
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codezest-academy/codezest-auth/apperr"
	"github.com/codezest-academy/codezest-auth/cache"
	"github.com/codezest-academy/codezest-auth/events"
	"github.com/codezest-academy/codezest-auth/mailer"
	"github.com/codezest-academy/codezest-auth/password"
	"github.com/codezest-academy/codezest-auth/session"
	"github.com/codezest-academy/codezest-auth/store"
	"github.com/codezest-academy/codezest-auth/token"
	"github.com/codezest-academy/codezest-auth/usercache"
	"go.uber.org/zap"
)

// Config carries the constants spec.md §4.2 names.
type Config struct {
	LockoutMaxAttempts   int
	LockoutDuration      time.Duration
	LockoutCounterWindow time.Duration
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
	FrontendBaseURL      string
}

func DefaultConfig() Config {
	return Config{
		LockoutMaxAttempts:   5,
		LockoutDuration:      30 * time.Minute,
		LockoutCounterWindow: time.Hour,
		PasswordResetTTL:     time.Hour,
		EmailVerificationTTL: 24 * time.Hour,
		FrontendBaseURL:      "http://localhost:3000",
	}
}

// lockoutRecord is the ephemeral login_attempts:{email} value.
type lockoutRecord struct {
	Attempts    int        `json:"attempts"`
	LockedUntil *time.Time `json:"lockedUntil,omitempty"`
}

// Engine implements spec.md §4.2.
type Engine struct {
	cfg       Config
	store     store.Store
	cache     *cache.Cache
	hasher    *password.Hasher
	sessions  *session.Engine
	mailer    mailer.Mailer
	emitter   *events.Emitter
	userCache *usercache.Reader
	log       *zap.Logger
}

func New(cfg Config, s store.Store, c *cache.Cache, hasher *password.Hasher, sessions *session.Engine, m mailer.Mailer, emitter *events.Emitter, userCache *usercache.Reader, log *zap.Logger) *Engine {
	return &Engine{cfg: cfg, store: s, cache: c, hasher: hasher, sessions: sessions, mailer: m, emitter: emitter, userCache: userCache, log: log}
}

// Result bundles a user and the token pair returned by register/login.
type Result struct {
	User  *store.User
	Pair  token.TokenPair
}

// Register implements spec.md §4.2 "register".
func (e *Engine) Register(ctx context.Context, email, plainPassword, firstName, lastName string, userName *string) (*Result, error) {
	if !password.MeetsPolicy(plainPassword) {
		return nil, apperr.Validation("password does not meet policy", map[string]string{"password": "must be 8+ chars with upper, lower, digit, symbol"})
	}

	hash, err := e.hasher.Hash(plainPassword)
	if err != nil {
		return nil, apperr.Internal("credential: hashing password", err)
	}

	u := &store.User{
		Email:        email,
		PasswordHash: &hash,
		FirstName:    firstName,
		LastName:     lastName,
		UserName:     userName,
		Role:         store.RoleUser,
		IsActive:     true,
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		if err == store.ErrConflict {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, apperr.Internal("credential: creating user", err)
	}

	verifyToken, err := token.RandomToken()
	if err != nil {
		return nil, apperr.Internal("credential: generating verification token", err)
	}
	if err := e.store.CreateEmailVerification(ctx, &store.EmailVerification{UserID: u.ID, Token: verifyToken}); err != nil {
		e.log.Warn("credential: creating email verification row failed", zap.Error(err))
	} else {
		verifyURL := fmt.Sprintf("%s/verify-email?token=%s", e.cfg.FrontendBaseURL, verifyToken)
		if err := e.mailer.SendVerificationEmail(ctx, u.Email, verifyURL); err != nil {
			// Mail failure must not fail registration (spec.md §4.2/§7).
			e.log.Warn("credential: sending verification email failed", zap.Error(err))
		}
		e.emitter.Emit(ctx, events.Event{Type: events.EmailVerificationSent, UserID: u.ID, Email: u.Email})
	}

	pair, _, err := e.sessions.IssueOnAuth(ctx, u.ID, u.Email, string(u.Role), "", "", "password")
	if err != nil {
		return nil, err
	}

	e.emitter.Emit(ctx, events.Event{Type: events.RegisterSuccess, UserID: u.ID, Email: u.Email})
	return &Result{User: u, Pair: pair}, nil
}

// Login implements spec.md §4.2 "login".
func (e *Engine) Login(ctx context.Context, email, plainPassword, ip, ua string) (*Result, error) {
	if locked, remaining := e.checkLocked(ctx, email); locked {
		return nil, apperr.Unauthorized(fmt.Sprintf("account locked, try again in %d minutes", remaining))
	}

	u, err := e.store.GetUserByEmail(ctx, email)
	if err != nil || u.PasswordHash == nil || !e.hasher.Verify(*u.PasswordHash, plainPassword) {
		if locked, remaining := e.handleFailedLogin(ctx, email); locked {
			// The attempt that trips the lock surfaces it immediately
			// rather than waiting for the next call to see it (spec.md §8 S3).
			return nil, apperr.Unauthorized(fmt.Sprintf("account locked, try again in %d minutes", remaining))
		}
		// Error text MUST NOT distinguish "no such user" from "wrong
		// password" (spec.md §4.2).
		return nil, apperr.Unauthorized("invalid email or password")
	}

	e.clearLockout(ctx, email)

	pair, _, err := e.sessions.IssueOnAuth(ctx, u.ID, u.Email, string(u.Role), ip, ua, "password")
	if err != nil {
		return nil, err
	}

	e.emitter.Emit(ctx, events.Event{Type: events.LoginSuccess, UserID: u.ID, Email: u.Email, IP: ip, UserAgent: ua})
	return &Result{User: u, Pair: pair}, nil
}

func (e *Engine) checkLocked(ctx context.Context, email string) (bool, int) {
	var rec lockoutRecord
	if err := e.cache.GetJSON(ctx, cache.LoginAttemptsKey(email), &rec); err != nil {
		// Ephemeral-store lookup failure fails open per spec.md §7's
		// default policy: skip the lockout check rather than block login.
		return false, 0
	}
	if rec.LockedUntil != nil && rec.LockedUntil.After(time.Now()) {
		remaining := int(time.Until(*rec.LockedUntil).Minutes()) + 1
		return true, remaining
	}
	return false, 0
}

// handleFailedLogin implements spec.md §4.2 "handleFailedLogin". The
// increment-and-maybe-trip-the-lock update runs as a single
// compare-and-swap against the ephemeral store (spec.md §5: "where
// atomicity matters (lockout increment...) a compare-and-set or atomic
// increment primitive MUST be used") so two concurrent failed logins can
// never both read attempts=n and both write back n+1, losing an
// increment. Returns whether this call tripped the lock and, if so, the
// remaining minutes, so the caller can surface the locked message on the
// very attempt that trips it rather than the next one.
func (e *Engine) handleFailedLogin(ctx context.Context, email string) (locked bool, remainingMinutes int) {
	key := cache.LoginAttemptsKey(email)
	var result lockoutRecord

	err := e.cache.CompareAndSwapJSON(ctx, key, func(exists bool, raw []byte) (any, time.Duration, bool, error) {
		var rec lockoutRecord
		if exists {
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, 0, false, err
			}
		}
		rec.Attempts++
		ttl := e.cfg.LockoutCounterWindow
		if rec.Attempts >= e.cfg.LockoutMaxAttempts {
			lockedUntil := time.Now().Add(e.cfg.LockoutDuration)
			rec.LockedUntil = &lockedUntil
			ttl = e.cfg.LockoutDuration
		}
		result = rec
		return rec, ttl, false, nil
	})
	if err != nil {
		e.log.Warn("credential: updating lockout record failed", zap.Error(err))
		return false, 0
	}

	if result.LockedUntil != nil {
		e.emitter.Emit(ctx, events.Event{Type: events.AccountLocked, Email: email})
		return true, int(time.Until(*result.LockedUntil).Minutes()) + 1
	}

	e.emitter.Emit(ctx, events.Event{Type: events.LoginFailed, Email: email})
	return false, 0
}

func (e *Engine) clearLockout(ctx context.Context, email string) {
	if err := e.cache.Delete(ctx, cache.LoginAttemptsKey(email)); err != nil {
		e.log.Warn("credential: clearing lockout record failed", zap.Error(err))
	}
}

// RequestPasswordReset implements spec.md §4.2 "requestPasswordReset".
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		// No user enumeration: always succeed.
		return nil
	}

	resetToken, err := token.RandomToken()
	if err != nil {
		return apperr.Internal("credential: generating reset token", err)
	}
	if err := e.store.CreatePasswordReset(ctx, &store.PasswordReset{
		UserID:    u.ID,
		Token:     resetToken,
		ExpiresAt: time.Now().Add(e.cfg.PasswordResetTTL),
	}); err != nil {
		e.log.Warn("credential: creating password reset row failed", zap.Error(err))
		return nil
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", e.cfg.FrontendBaseURL, resetToken)
	if err := e.mailer.SendPasswordResetEmail(ctx, u.Email, resetURL); err != nil {
		e.log.Warn("credential: sending reset email failed", zap.Error(err))
	}

	e.emitter.Emit(ctx, events.Event{Type: events.PasswordResetRequested, UserID: u.ID, Email: u.Email})
	return nil
}

// ResetPassword implements spec.md §4.2 "resetPassword".
func (e *Engine) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if !password.MeetsPolicy(newPassword) {
		return apperr.Validation("password does not meet policy", nil)
	}

	r, err := e.store.GetPasswordResetByToken(ctx, resetToken)
	if err != nil || r.Used || !r.ExpiresAt.After(time.Now()) {
		return apperr.BadRequest("invalid or expired password reset token")
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal("credential: hashing password", err)
	}
	if err := e.store.UpdateUserPassword(ctx, r.UserID, hash); err != nil {
		return apperr.Internal("credential: updating password", err)
	}
	if err := e.store.MarkPasswordResetUsed(ctx, r.ID); err != nil {
		e.log.Warn("credential: marking reset token used failed", zap.Error(err))
	}
	if err := e.sessions.InvalidateAllSessions(ctx, r.UserID); err != nil {
		e.log.Warn("credential: invalidating sessions after reset failed", zap.Error(err))
	}
	e.invalidateUserCache(ctx, r.UserID)

	e.emitter.Emit(ctx, events.Event{Type: events.PasswordResetSuccess, UserID: r.UserID})
	return nil
}

// ChangePassword implements spec.md §4.2 "changePassword".
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if !password.MeetsPolicy(newPassword) {
		return apperr.Validation("password does not meet policy", nil)
	}

	u, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		return apperr.NotFound("user not found")
	}
	if u.PasswordHash == nil || !e.hasher.Verify(*u.PasswordHash, currentPassword) {
		return apperr.Unauthorized("current password is incorrect")
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal("credential: hashing password", err)
	}
	if err := e.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return apperr.Internal("credential: updating password", err)
	}
	if err := e.sessions.InvalidateAllSessions(ctx, userID); err != nil {
		e.log.Warn("credential: invalidating sessions after change failed", zap.Error(err))
	}
	e.invalidateUserCache(ctx, userID)

	e.emitter.Emit(ctx, events.Event{Type: events.PasswordChanged, UserID: userID})
	return nil
}

// VerifyEmail implements spec.md §4.2 "verifyEmail".
func (e *Engine) VerifyEmail(ctx context.Context, verifyToken string) error {
	v, err := e.store.GetEmailVerificationByToken(ctx, verifyToken)
	if err != nil {
		return apperr.BadRequest("invalid email verification token")
	}
	if v.Verified {
		return apperr.BadRequest("email already verified")
	}
	if time.Since(v.CreatedAt) > e.cfg.EmailVerificationTTL {
		return apperr.BadRequest("email verification token expired")
	}

	if err := e.store.MarkEmailVerificationVerified(ctx, v.ID); err != nil {
		return apperr.Internal("credential: marking verification row", err)
	}
	if err := e.store.SetEmailVerified(ctx, v.UserID); err != nil {
		return apperr.Internal("credential: updating user", err)
	}
	e.invalidateUserCache(ctx, v.UserID)

	e.emitter.Emit(ctx, events.Event{Type: events.EmailVerified, UserID: v.UserID})
	return nil
}

// invalidateUserCache enforces spec.md §4.6's rule that any User mutation
// invalidate the read-through cache before the caller sees success.
func (e *Engine) invalidateUserCache(ctx context.Context, userID string) {
	if e.userCache != nil {
		e.userCache.Invalidate(ctx, userID)
	}
}
