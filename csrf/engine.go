// Package csrf implements the CSRF Engine of spec.md §4.5: single-use-
// per-lifetime opaque tokens bound to a cache TTL, not bound to user
// identity — that is intentional (spec.md §4.5, §9 open question 6): the
// token only proves same-origin fetch, authentication rides separately on
// the bearer access token.
package csrf

import (
	"context"
	"time"

	"github.com/codezest-academy/codezest-auth/apperr"
	"github.com/codezest-academy/codezest-auth/cache"
	"github.com/codezest-academy/codezest-auth/token"
)

// TTL is the CSRF token lifetime from spec.md §3.
const TTL = 24 * time.Hour

type record struct {
	CreatedAt time.Time `json:"createdAt"`
}

// Engine implements spec.md §4.5.
type Engine struct {
	cache *cache.Cache
}

func New(c *cache.Cache) *Engine { return &Engine{cache: c} }

// GenerateToken returns a random opaque token and stores it with TTL 24h.
func (e *Engine) GenerateToken(ctx context.Context) (string, error) {
	tok, err := token.RandomToken()
	if err != nil {
		return "", apperr.Internal("csrf: generating token", err)
	}
	if err := e.cache.SetJSON(ctx, cache.CSRFKey(tok), record{CreatedAt: time.Now()}, TTL); err != nil {
		return "", apperr.Internal("csrf: storing token", err)
	}
	return tok, nil
}

// ValidateToken reports whether tok exists. Failures short-circuit with
// Forbidden at the caller (spec.md §4.5).
func (e *Engine) ValidateToken(ctx context.Context, tok string) error {
	exists, err := e.cache.Exists(ctx, cache.CSRFKey(tok))
	if err != nil {
		return apperr.Internal("csrf: validating token", err)
	}
	if !exists {
		return apperr.Forbidden("missing or invalid CSRF token")
	}
	return nil
}
