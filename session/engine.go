// Package session implements the Session & Rotation Engine of spec.md
// §4.3: session creation, refresh-token rotation with per-family-head
// reuse detection, and session inventory/revocation.
//
// Unlike the teacher's session/store.go, the Session row here is a
// durable relational row (store.Store), not an ephemeral Redis blob — so
// there is no Lua-script CAS machinery; the unique constraint on
// Session.token is the serialization point for concurrent rotations
// (spec.md §5), and the ephemeral store only ever holds the small
// token-family-head and session-metadata JSON blobs.
package session

import (
	"context"
	"time"

	"github.com/codezest-academy/codezest-auth/apperr"
	"github.com/codezest-academy/codezest-auth/cache"
	"github.com/codezest-academy/codezest-auth/events"
	"github.com/codezest-academy/codezest-auth/store"
	"github.com/codezest-academy/codezest-auth/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionTTL is the Session row / token-family-head / session-metadata
// lifetime from spec.md §3/§4.3 ("expiresAt=now+7d" / TTL 7d).
const SessionTTL = 7 * 24 * time.Hour

// familyHead is the ephemeral token_family:{familyId} value.
type familyHead struct {
	CurrentToken string `json:"currentToken"`
	UserID       string `json:"userId"`
}

// Meta is the ephemeral session_meta:{sessionId} value.
type Meta struct {
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
	LoginMethod string    `json:"loginMethod,omitempty"`
}

// View is a Session row merged with its (possibly absent) metadata, as
// returned by GetSessions.
type View struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	LoginMethod string    `json:"loginMethod,omitempty"`
	IsCurrent   bool      `json:"isCurrent"`
}

// Engine implements spec.md §4.3.
type Engine struct {
	store    store.Store
	cache    *cache.Cache
	tokens   *token.Service
	emitter  *events.Emitter
	log      *zap.Logger
}

func New(s store.Store, c *cache.Cache, tokens *token.Service, emitter *events.Emitter, log *zap.Logger) *Engine {
	return &Engine{store: s, cache: c, tokens: tokens, emitter: emitter, log: log}
}

// IssueOnAuth implements spec.md §4.3 "issue-on-auth": fresh sessionId,
// fresh familyId, issue access+refresh, write the family head, create
// the Session row.
func (e *Engine) IssueOnAuth(ctx context.Context, userID, email, role, ip, ua, loginMethod string) (token.TokenPair, string, error) {
	sessionID := uuid.NewString()
	familyID := uuid.NewString()

	pair, err := e.tokens.IssuePair(userID, email, role, familyID, sessionID)
	if err != nil {
		return token.TokenPair{}, "", apperr.Internal("session: issuing tokens", err)
	}

	if err := e.cache.SetJSON(ctx, cache.TokenFamilyKey(familyID), familyHead{CurrentToken: pair.RefreshToken, UserID: userID}, SessionTTL); err != nil {
		e.log.Warn("session: family head write failed", zap.Error(err))
	}

	if err := e.createSession(ctx, userID, sessionID, pair.RefreshToken, ip, ua, loginMethod); err != nil {
		return token.TokenPair{}, "", err
	}

	e.emitter.Emit(ctx, events.Event{Type: events.SessionCreated, UserID: userID, SessionID: sessionID, IP: ip, UserAgent: ua})
	return pair, sessionID, nil
}

// createSession implements spec.md §4.3 "createSession".
func (e *Engine) createSession(ctx context.Context, userID, sessionID, refreshToken, ip, ua, loginMethod string) error {
	now := time.Now()
	if err := e.store.CreateSession(ctx, &store.Session{
		ID:        sessionID,
		UserID:    userID,
		Token:     refreshToken,
		ExpiresAt: now.Add(SessionTTL),
	}); err != nil {
		if err == store.ErrConflict {
			return apperr.Conflict("session token collision")
		}
		return apperr.Internal("session: creating session row", err)
	}

	meta := Meta{IP: ip, UserAgent: ua, LastUsedAt: now, LastLoginAt: now, LoginMethod: loginMethod}
	if err := e.cache.SetJSON(ctx, cache.SessionMetaKey(sessionID), meta, SessionTTL); err != nil {
		e.log.Warn("session: metadata write failed", zap.Error(err))
	}
	return nil
}

// Refresh implements spec.md §4.3 "refresh".
func (e *Engine) Refresh(ctx context.Context, refreshToken, ip, ua string) (token.TokenPair, error) {
	claims, err := e.tokens.Refresh.Verify(refreshToken)
	if err != nil {
		e.emitter.Emit(ctx, events.Event{Type: events.TokenRefreshFailed, Error: err.Error()})
		return token.TokenPair{}, apperr.Unauthorized("invalid or expired refresh token")
	}

	if claims.FamilyID != "" {
		var head familyHead
		err := e.cache.GetJSON(ctx, cache.TokenFamilyKey(claims.FamilyID), &head)
		if err == nil && head.CurrentToken != refreshToken {
			// Reuse: the family head disagrees with the presented token.
			// Per DESIGN.md's resolution of spec.md §9 open question 3,
			// this purges every session for the user, not just the family.
			_ = e.cache.Delete(ctx, cache.TokenFamilyKey(claims.FamilyID))
			if err := e.InvalidateAllSessions(ctx, claims.UserID); err != nil {
				e.log.Warn("session: reuse-triggered purge failed", zap.Error(err))
			}
			e.emitter.Emit(ctx, events.Event{Type: events.TokenReuseDetected, UserID: claims.UserID, SessionID: claims.SessionID})
			return token.TokenPair{}, apperr.Unauthorized("refresh token reuse detected")
		}
		if err != nil && err != cache.ErrMiss {
			e.log.Warn("session: family head lookup failed", zap.Error(err))
		}
	}

	sess, err := e.store.GetSessionByToken(ctx, refreshToken)
	if err != nil {
		return token.TokenPair{}, apperr.Unauthorized("invalid or expired refresh token")
	}
	if !sess.ExpiresAt.After(time.Now()) {
		_ = e.store.DeleteSession(ctx, sess.ID)
		return token.TokenPair{}, apperr.Unauthorized("invalid or expired refresh token")
	}

	u, err := e.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return token.TokenPair{}, apperr.Unauthorized("invalid or expired refresh token")
	}

	newSessionID := uuid.NewString()
	pair, err := e.tokens.IssuePair(u.ID, u.Email, string(u.Role), claims.FamilyID, newSessionID)
	if err != nil {
		return token.TokenPair{}, apperr.Internal("session: issuing tokens", err)
	}

	if err := e.cache.SetJSON(ctx, cache.TokenFamilyKey(claims.FamilyID), familyHead{CurrentToken: pair.RefreshToken, UserID: u.ID}, SessionTTL); err != nil {
		e.log.Warn("session: family head update failed", zap.Error(err))
	}

	if err := e.store.DeleteSession(ctx, sess.ID); err != nil {
		e.log.Warn("session: deleting rotated session row failed", zap.Error(err))
	}
	_ = e.cache.Delete(ctx, cache.SessionMetaKey(sess.ID))

	if err := e.createSession(ctx, u.ID, newSessionID, pair.RefreshToken, ip, ua, "refresh"); err != nil {
		return token.TokenPair{}, err
	}

	e.emitter.Emit(ctx, events.Event{Type: events.TokenRefreshSuccess, UserID: u.ID, SessionID: newSessionID})
	return pair, nil
}

// Logout implements spec.md §4.3 "logout": idempotent best-effort delete.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	sess, err := e.store.GetSessionByToken(ctx, refreshToken)
	if err != nil {
		return nil
	}
	if err := e.store.DeleteSession(ctx, sess.ID); err != nil {
		e.log.Warn("session: logout delete failed", zap.Error(err))
	}
	_ = e.cache.Delete(ctx, cache.SessionMetaKey(sess.ID))
	e.emitter.Emit(ctx, events.Event{Type: events.SessionRevoked, UserID: sess.UserID, SessionID: sess.ID})
	return nil
}

// GetSessions implements spec.md §4.3 "getSessions".
func (e *Engine) GetSessions(ctx context.Context, userID, currentSessionID string) ([]View, error) {
	rows, err := e.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("session: listing sessions", err)
	}

	views := make([]View, 0, len(rows))
	for _, s := range rows {
		v := View{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			IsCurrent: s.ID == currentSessionID,
		}
		var meta Meta
		if err := e.cache.GetJSON(ctx, cache.SessionMetaKey(s.ID), &meta); err == nil {
			v.IP = meta.IP
			v.UserAgent = meta.UserAgent
			v.LoginMethod = meta.LoginMethod
			lastUsed := meta.LastUsedAt
			v.LastUsedAt = &lastUsed
		}
		views = append(views, v)
	}
	return views, nil
}

// RevokeSession implements spec.md §4.3 "revokeSession".
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	rows, err := e.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return apperr.Internal("session: listing sessions", err)
	}
	found := false
	for _, s := range rows {
		if s.ID == sessionID {
			found = true
			break
		}
	}
	if !found {
		return apperr.NotFound("session not found")
	}

	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		return apperr.Internal("session: deleting session", err)
	}
	_ = e.cache.Delete(ctx, cache.SessionMetaKey(sessionID))
	e.emitter.Emit(ctx, events.Event{Type: events.SessionRevoked, UserID: userID, SessionID: sessionID})
	return nil
}

// RevokeOtherSessions implements spec.md §4.3 "revokeOtherSessions".
func (e *Engine) RevokeOtherSessions(ctx context.Context, userID, currentSessionID string) error {
	rows, err := e.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return apperr.Internal("session: listing sessions", err)
	}
	if err := e.store.DeleteOtherSessions(ctx, userID, currentSessionID); err != nil {
		return apperr.Internal("session: revoking other sessions", err)
	}
	for _, s := range rows {
		if s.ID != currentSessionID {
			_ = e.cache.Delete(ctx, cache.SessionMetaKey(s.ID))
		}
	}
	e.emitter.Emit(ctx, events.Event{Type: events.SessionRevoked, UserID: userID})
	return nil
}

// InvalidateAllSessions deletes every Session row for userID — used by
// the Credential Engine after password change/reset (spec.md §4.2/§8.3)
// and, per the reuse-purge policy decided in DESIGN.md, after detected
// refresh-token reuse.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID string) error {
	rows, err := e.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return apperr.Internal("session: listing sessions", err)
	}
	if err := e.store.DeleteAllSessionsForUser(ctx, userID); err != nil {
		return apperr.Internal("session: invalidating sessions", err)
	}
	for _, s := range rows {
		_ = e.cache.Delete(ctx, cache.SessionMetaKey(s.ID))
	}
	return nil
}
