// Package store implements the durable store adapter of spec.md §3/§2.2:
// typed access to the six entities, transactional semantics per
// operation, cascading deletes via foreign keys. Grounded on
// ovaphlow-pitchfork's pkg/database connection setup and its sqlx-based
// repo pattern.
package store

import "time"

// Role mirrors spec.md §3's two-value role enum.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Provider mirrors spec.md §3's OAuthAccount.provider enum.
type Provider string

const (
	ProviderGoogle Provider = "GOOGLE"
	ProviderGitHub Provider = "GITHUB"
)

// User is spec.md §3's User entity.
type User struct {
	ID            string     `db:"id"`
	Email         string     `db:"email"`
	PasswordHash  *string    `db:"password_hash"`
	FirstName     string     `db:"first_name"`
	LastName      string     `db:"last_name"`
	UserName      *string    `db:"user_name"`
	Role          Role       `db:"role"`
	EmailVerified bool       `db:"email_verified"`
	IsActive      bool       `db:"is_active"`
	IsSuspended   bool       `db:"is_suspended"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Session is spec.md §3's Session entity: one row per outstanding
// refresh token.
type Session struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// OAuthAccount is spec.md §3's OAuthAccount entity.
type OAuthAccount struct {
	ID                  string    `db:"id"`
	UserID              string    `db:"user_id"`
	Provider            Provider  `db:"provider"`
	ProviderID          string    `db:"provider_id"`
	ProviderAccessToken *string   `db:"provider_access_token"`
	ProviderRefreshTok  *string   `db:"provider_refresh_token"`
	CreatedAt           time.Time `db:"created_at"`
}

// UserProfile is spec.md §3's 1:1 optional profile extension.
type UserProfile struct {
	ID        string  `db:"id"`
	UserID    string  `db:"user_id"`
	Bio       *string `db:"bio"`
	AvatarURL *string `db:"avatar_url"`
	Website   *string `db:"website"`
	Location  *string `db:"location"`
}

// EmailVerification is spec.md §3's EmailVerification entity.
type EmailVerification struct {
	ID         string     `db:"id"`
	UserID     string     `db:"user_id"`
	Token      string     `db:"token"`
	Verified   bool       `db:"verified"`
	VerifiedAt *time.Time `db:"verified_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

// PasswordReset is spec.md §3's PasswordReset entity.
type PasswordReset struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	Token     string     `db:"token"`
	ExpiresAt time.Time  `db:"expires_at"`
	Used      bool       `db:"used"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}
