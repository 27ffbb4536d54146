package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
)

// Config mirrors ovaphlow-pitchfork's pkg/database.Config shape.
type Config struct {
	DSN         string
	MaxConns    int
	MaxIdle     int
	ConnMaxLife time.Duration
	PingTimeout time.Duration
}

// Postgres is the lib/pq + sqlx durable-store adapter.
type Postgres struct {
	db *sqlx.DB
}

// Connect opens and pings a Postgres connection pool per cfg, following
// ovaphlow-pitchfork's pkg/database/db.go connection setup.
func Connect(cfg Config) (*Postgres, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = maxConns
	}
	connMaxLife := cfg.ConnMaxLife
	if connMaxLife <= 0 {
		connMaxLife = 30 * time.Minute
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLife)

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// translateErr maps a Postgres unique-violation into ErrConflict and a
// no-rows result into ErrNotFound, per spec.md §5/§7.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrConflict
	}
	return err
}

func newID() string { return ksuid.New().String() }

// citext gives case-insensitive email uniqueness/lookup without the
// service having to lowercase every comparison itself.
const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email CITEXT UNIQUE NOT NULL,
  password_hash TEXT,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  user_name TEXT UNIQUE,
  role TEXT NOT NULL DEFAULT 'USER',
  email_verified BOOLEAN NOT NULL DEFAULT false,
  is_active BOOLEAN NOT NULL DEFAULT true,
  is_suspended BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token TEXT UNIQUE NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);

CREATE TABLE IF NOT EXISTS oauth_accounts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  provider TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  provider_access_token TEXT,
  provider_refresh_token TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE(provider, provider_id)
);
CREATE INDEX IF NOT EXISTS idx_oauth_accounts_user_id ON oauth_accounts(user_id);

CREATE TABLE IF NOT EXISTS user_profiles (
  id TEXT PRIMARY KEY,
  user_id TEXT UNIQUE NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  bio TEXT,
  avatar_url TEXT,
  website TEXT,
  location TEXT
);

CREATE TABLE IF NOT EXISTS email_verifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token TEXT UNIQUE NOT NULL,
  verified BOOLEAN NOT NULL DEFAULT false,
  verified_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS password_resets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token TEXT UNIQUE NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  used BOOLEAN NOT NULL DEFAULT false,
  used_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates all tables idempotently. A convenience for
// development/tests; production deployments should use a real migration
// tool, consistent with ovaphlow-pitchfork's own EnsureTable caveat.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, ddl)
	return err
}

func (p *Postgres) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	const q = `INSERT INTO users (id,email,password_hash,first_name,last_name,user_name,role,email_verified,is_active,is_suspended)
		VALUES (:id,:email,:password_hash,:first_name,:last_name,:user_name,:role,:email_verified,:is_active,:is_suspended)`
	_, err := p.db.NamedExecContext(ctx, q, u)
	return translateErr(err)
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := p.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id=$1`, id)
	if err != nil {
		return nil, translateErr(err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := p.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email=$1`, email)
	if err != nil {
		return nil, translateErr(err)
	}
	return &u, nil
}

func (p *Postgres) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE users SET password_hash=$1, updated_at=now() WHERE id=$2`, passwordHash, userID)
	return translateErr(err)
}

func (p *Postgres) SetEmailVerified(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE users SET email_verified=true, updated_at=now() WHERE id=$1`, userID)
	return translateErr(err)
}

func (p *Postgres) DeleteUser(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	return translateErr(err)
}

func (p *Postgres) CreateSession(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = newID()
	}
	const q = `INSERT INTO sessions (id,user_id,token,expires_at) VALUES (:id,:user_id,:token,:expires_at)`
	_, err := p.db.NamedExecContext(ctx, q, s)
	return translateErr(err)
}

func (p *Postgres) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	var s Session
	err := p.db.GetContext(ctx, &s, `SELECT * FROM sessions WHERE token=$1`, token)
	if err != nil {
		return nil, translateErr(err)
	}
	return &s, nil
}

func (p *Postgres) ListSessionsByUser(ctx context.Context, userID string) ([]Session, error) {
	var sessions []Session
	err := p.db.SelectContext(ctx, &sessions, `SELECT * FROM sessions WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	return sessions, translateErr(err)
}

func (p *Postgres) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1`, sessionID)
	return translateErr(err)
}

func (p *Postgres) DeleteSessionByToken(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=$1`, token)
	return translateErr(err)
}

func (p *Postgres) DeleteAllSessionsForUser(ctx context.Context, userID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=$1`, userID)
	return translateErr(err)
}

func (p *Postgres) DeleteOtherSessions(ctx context.Context, userID, keepSessionID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=$1 AND id<>$2`, userID, keepSessionID)
	return translateErr(err)
}

func (p *Postgres) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

func (p *Postgres) CreateOAuthAccount(ctx context.Context, a *OAuthAccount) error {
	if a.ID == "" {
		a.ID = newID()
	}
	const q = `INSERT INTO oauth_accounts (id,user_id,provider,provider_id,provider_access_token,provider_refresh_token)
		VALUES (:id,:user_id,:provider,:provider_id,:provider_access_token,:provider_refresh_token)`
	_, err := p.db.NamedExecContext(ctx, q, a)
	return translateErr(err)
}

func (p *Postgres) GetOAuthAccountByProvider(ctx context.Context, provider Provider, providerID string) (*OAuthAccount, error) {
	var a OAuthAccount
	err := p.db.GetContext(ctx, &a, `SELECT * FROM oauth_accounts WHERE provider=$1 AND provider_id=$2`, provider, providerID)
	if err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (p *Postgres) ListOAuthAccountsByUser(ctx context.Context, userID string) ([]OAuthAccount, error) {
	var accounts []OAuthAccount
	err := p.db.SelectContext(ctx, &accounts, `SELECT * FROM oauth_accounts WHERE user_id=$1`, userID)
	return accounts, translateErr(err)
}

func (p *Postgres) DeleteOAuthAccount(ctx context.Context, userID string, provider Provider) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM oauth_accounts WHERE user_id=$1 AND provider=$2`, userID, provider)
	if err != nil {
		return translateErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	var prof UserProfile
	err := p.db.GetContext(ctx, &prof, `SELECT * FROM user_profiles WHERE user_id=$1`, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	return &prof, nil
}

func (p *Postgres) UpsertUserProfile(ctx context.Context, prof *UserProfile) error {
	if prof.ID == "" {
		prof.ID = newID()
	}
	const q = `INSERT INTO user_profiles (id,user_id,bio,avatar_url,website,location)
		VALUES (:id,:user_id,:bio,:avatar_url,:website,:location)
		ON CONFLICT (user_id) DO UPDATE SET bio=EXCLUDED.bio, avatar_url=EXCLUDED.avatar_url, website=EXCLUDED.website, location=EXCLUDED.location`
	_, err := p.db.NamedExecContext(ctx, q, prof)
	return translateErr(err)
}

func (p *Postgres) CreateEmailVerification(ctx context.Context, v *EmailVerification) error {
	if v.ID == "" {
		v.ID = newID()
	}
	const q = `INSERT INTO email_verifications (id,user_id,token,verified) VALUES (:id,:user_id,:token,:verified)`
	_, err := p.db.NamedExecContext(ctx, q, v)
	return translateErr(err)
}

func (p *Postgres) GetEmailVerificationByToken(ctx context.Context, token string) (*EmailVerification, error) {
	var v EmailVerification
	err := p.db.GetContext(ctx, &v, `SELECT * FROM email_verifications WHERE token=$1`, token)
	if err != nil {
		return nil, translateErr(err)
	}
	return &v, nil
}

func (p *Postgres) MarkEmailVerificationVerified(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE email_verifications SET verified=true, verified_at=now() WHERE id=$1`, id)
	return translateErr(err)
}

func (p *Postgres) CreatePasswordReset(ctx context.Context, r *PasswordReset) error {
	if r.ID == "" {
		r.ID = newID()
	}
	const q = `INSERT INTO password_resets (id,user_id,token,expires_at,used) VALUES (:id,:user_id,:token,:expires_at,:used)`
	_, err := p.db.NamedExecContext(ctx, q, r)
	return translateErr(err)
}

func (p *Postgres) GetPasswordResetByToken(ctx context.Context, token string) (*PasswordReset, error) {
	var r PasswordReset
	err := p.db.GetContext(ctx, &r, `SELECT * FROM password_resets WHERE token=$1`, token)
	if err != nil {
		return nil, translateErr(err)
	}
	return &r, nil
}

func (p *Postgres) MarkPasswordResetUsed(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE password_resets SET used=true, used_at=now() WHERE id=$1`, id)
	return translateErr(err)
}

func (p *Postgres) DeleteExpiredPasswordResets(ctx context.Context, before time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM password_resets WHERE expires_at < $1`, before)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

var _ Store = (*Postgres)(nil)
