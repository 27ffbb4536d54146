// Package usercache implements the cache-aside User-by-id reader of
// spec.md §4.6: a read-through cache with explicit invalidation on write.
package usercache

import (
	"context"
	"time"

	"github.com/codezest-academy/codezest-auth/cache"
	"github.com/codezest-academy/codezest-auth/store"
	"go.uber.org/zap"
)

// TTL is the user read-cache entry lifetime from spec.md §3.
const TTL = time.Hour

// Reader is the cache-aside reader.
type Reader struct {
	cache *cache.Cache
	store store.Store
	log   *zap.Logger
}

func New(c *cache.Cache, s store.Store, log *zap.Logger) *Reader {
	return &Reader{cache: c, store: s, log: log}
}

// GetByID returns the user, trying the cache first and falling through to
// the durable store on a miss. Ephemeral-store failures never fail the
// read (spec.md §4.6) — they just skip the cache.
func (r *Reader) GetByID(ctx context.Context, id string) (*store.User, error) {
	var cached store.User
	if err := r.cache.GetJSON(ctx, cache.UserKey(id), &cached); err == nil {
		return &cached, nil
	} else if err != cache.ErrMiss {
		r.log.Warn("usercache: read failed, falling through", zap.Error(err))
	}

	u, err := r.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetJSON(ctx, cache.UserKey(id), u, TTL); err != nil {
		r.log.Warn("usercache: write-through failed", zap.Error(err))
	}
	return u, nil
}

// Invalidate removes the cached entry for id. Callers MUST call this
// before returning success from any User mutation (spec.md §4.6), so
// that a stale role can never be read back against a fresh access token.
func (r *Reader) Invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, cache.UserKey(id)); err != nil {
		r.log.Warn("usercache: invalidation failed", zap.Error(err))
	}
}
