// Package cache implements the ephemeral store adapter of spec.md §3/§2.3:
// a key/value store with per-key TTL, atomic set-with-expiry, delete,
// pattern-scan delete, and a ping. Delete is idempotent; Incr and
// CompareAndSwapJSON change the stored value on every call. All
// operations are best-effort per spec.md §2.3 — callers decide whether a failure is
// fatal; this package never panics on a Redis error.
//
// Grounded on the teacher's session/store.go for key-naming and
// TTL-discipline style, without its Lua-script CAS machinery: our Session
// rows live in the durable store (store.Store), so the ephemeral store
// here only ever holds small JSON blobs with a TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by GetJSON when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Cache wraps a go-redis client.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis at addr/password/db.
func New(addr, password string, db int) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewFromClient wraps an existing client (used by tests against
// miniredis).
func NewFromClient(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) Close() error { return c.rdb.Close() }

// SetJSON marshals value and stores it at key with the given TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// GetJSON loads key and unmarshals it into dst. Returns ErrMiss on a
// cache miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes key; deleting a missing key is a no-op success
// (idempotent per spec.md §2.3).
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Incr atomically increments key and, only on the first increment
// (result==1), applies ttl — the same "INCR then conditionally EXPIRE"
// pattern the teacher's account_limiter.go and internal/limiters/lockout.go
// use for counters.
func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// CompareAndSwapJSON performs an optimistic read-modify-write: it loads
// the current value (if any), lets fn mutate it and choose the TTL the
// new value is written with, and writes the result back only if nothing
// else touched the key in between. Used where the ephemeral store is
// authoritative and a race would be a correctness bug (e.g. the lockout
// counter, spec.md §5), grounded on the teacher's reset_store.go
// WATCH/TxPipelined retry loop. A write that loses the race is retried
// (fn runs again on the fresh value) until it lands or ctx is done.
func (c *Cache) CompareAndSwapJSON(ctx context.Context, key string, fn func(exists bool, raw []byte) (newValue any, ttl time.Duration, skip bool, err error)) error {
	for {
		err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, getErr := tx.Get(ctx, key).Bytes()
			exists := getErr == nil
			if getErr != nil && !errors.Is(getErr, redis.Nil) {
				return getErr
			}

			newValue, ttl, skip, fnErr := fn(exists, raw)
			if fnErr != nil {
				return fnErr
			}
			if skip {
				return nil
			}

			encoded, marshalErr := json.Marshal(newValue)
			if marshalErr != nil {
				return marshalErr
			}

			_, txErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			return txErr
		}, key)

		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

// ScanDelete deletes every key matching pattern, following the pattern-
// scan-delete operation spec.md §2.3 requires. The sweeper does not call
// it (see sweeper's package doc and DESIGN.md).
func (c *Cache) ScanDelete(ctx context.Context, pattern string) (int64, error) {
	var cursor uint64
	var deleted int64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}
