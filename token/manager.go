// Package token implements the Token Service from spec.md §4.1: signed
// access/refresh token issuance and validation with two distinct signing
// secrets, fixed issuer/audience, and random token generation, grounded
// on the teacher's jwt.Manager and simplified to this service's claim
// set (userId, email, role, familyId, sessionId).
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload carried by both access and refresh tokens
// (spec.md §4.1).
type Claims struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FamilyID  string `json:"familyId"`
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}

// Config configures one Manager (one per secret: access or refresh).
type Config struct {
	Secret   string
	TTL      time.Duration
	Issuer   string
	Audience string
}

// Manager issues and verifies tokens signed with one HS256 secret.
type Manager struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
}

var (
	ErrInvalidToken = errors.New("token: malformed token")
	ErrExpiredToken = errors.New("token: expired")
	ErrBadIssuer    = errors.New("token: wrong issuer or audience")
	ErrBadSignature = errors.New("token: bad signature")
)

// NewManager validates cfg and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("token: secret must be at least 16 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token: ttl must be positive")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, fmt.Errorf("token: issuer and audience are required")
	}
	return &Manager{
		secret:   []byte(cfg.Secret),
		ttl:      cfg.TTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

// Issue mints a signed token carrying the given identity/session claims.
func (m *Manager) Issue(userID, email, role, familyID, sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		FamilyID:  familyID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secret)
}

// Verify parses and validates a token, distinguishing malformed,
// bad-signature, wrong issuer/audience, and expired failures per
// spec.md §4.1.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrBadIssuer
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrInvalidToken
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Service bundles the access and refresh managers, matching spec.md
// §4.1's "two distinct signing keys (access vs refresh)".
type Service struct {
	Access  *Manager
	Refresh *Manager
}

// NewService builds both managers from the given secrets/TTLs/iss/aud.
func NewService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer, audience string) (*Service, error) {
	access, err := NewManager(Config{Secret: accessSecret, TTL: accessTTL, Issuer: issuer, Audience: audience})
	if err != nil {
		return nil, fmt.Errorf("token: access manager: %w", err)
	}
	refresh, err := NewManager(Config{Secret: refreshSecret, TTL: refreshTTL, Issuer: issuer, Audience: audience})
	if err != nil {
		return nil, fmt.Errorf("token: refresh manager: %w", err)
	}
	return &Service{Access: access, Refresh: refresh}, nil
}

// TokenPair is the {access,refresh} bearer string pair returned to callers.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IssuePair issues an access and a refresh token sharing the same
// identity/session claims.
func (s *Service) IssuePair(userID, email, role, familyID, sessionID string) (TokenPair, error) {
	access, err := s.Access.Issue(userID, email, role, familyID, sessionID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.Refresh.Issue(userID, email, role, familyID, sessionID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
