package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write violates a unique constraint
// (User.email, Session.token, OAuthAccount.(provider,providerId),
// verification/reset tokens) — spec.md §5.
var ErrConflict = errors.New("store: conflict")

// Store is the durable store adapter's full surface. Engines depend on
// this interface, not on the Postgres implementation, so tests can swap
// in the in-memory MemoryStore fake (store/memory.go) per SPEC_FULL.md
// §10.4.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	SetEmailVerified(ctx context.Context, userID string) error
	DeleteUser(ctx context.Context, userID string) error

	CreateSession(ctx context.Context, s *Session) error
	GetSessionByToken(ctx context.Context, token string) (*Session, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteSessionByToken(ctx context.Context, token string) error
	DeleteAllSessionsForUser(ctx context.Context, userID string) error
	DeleteOtherSessions(ctx context.Context, userID, keepSessionID string) error
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)

	CreateOAuthAccount(ctx context.Context, a *OAuthAccount) error
	GetOAuthAccountByProvider(ctx context.Context, provider Provider, providerID string) (*OAuthAccount, error)
	ListOAuthAccountsByUser(ctx context.Context, userID string) ([]OAuthAccount, error)
	DeleteOAuthAccount(ctx context.Context, userID string, provider Provider) error

	GetUserProfile(ctx context.Context, userID string) (*UserProfile, error)
	UpsertUserProfile(ctx context.Context, p *UserProfile) error

	CreateEmailVerification(ctx context.Context, v *EmailVerification) error
	GetEmailVerificationByToken(ctx context.Context, token string) (*EmailVerification, error)
	MarkEmailVerificationVerified(ctx context.Context, id string) error

	CreatePasswordReset(ctx context.Context, r *PasswordReset) error
	GetPasswordResetByToken(ctx context.Context, token string) (*PasswordReset, error)
	MarkPasswordResetUsed(ctx context.Context, id string) error
	DeleteExpiredPasswordResets(ctx context.Context, before time.Time) (int64, error)

	Ping(ctx context.Context) error
}
