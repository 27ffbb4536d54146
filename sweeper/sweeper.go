// Package sweeper implements the Background Sweeper of spec.md §4.7: a
// ticker-driven loop that deletes expired Session and PasswordReset rows
// from the durable store. Ephemeral token-family heads and session
// metadata already carry their own TTL and expire on their own in the
// ephemeral store, so the resolution of spec.md §9 open question 7
// (documented in DESIGN.md) is that the sweeper's scope stays limited to
// the durable store — an unconditional cache.ScanDelete over
// token_family:* would delete live family heads along with stale ones,
// which is strictly worse than letting Redis expire them itself.
package sweeper

import (
	"context"
	"time"

	"github.com/codezest-academy/codezest-auth/store"
	"go.uber.org/zap"
)

// Sweeper periodically purges expired durable-store rows.
type Sweeper struct {
	store    store.Store
	interval time.Duration
	log      *zap.Logger
}

func New(s store.Store, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: s, interval: interval, log: log}
}

// Run blocks, sweeping on every tick until ctx is canceled. Intended to be
// started in its own goroutine at process start.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now()

	if n, err := s.store.DeleteExpiredSessions(ctx, now); err != nil {
		s.log.Warn("sweeper: deleting expired sessions failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("sweeper: deleted expired sessions", zap.Int64("count", n))
	}

	if n, err := s.store.DeleteExpiredPasswordResets(ctx, now); err != nil {
		s.log.Warn("sweeper: deleting expired password resets failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("sweeper: deleted expired password resets", zap.Int64("count", n))
	}
}
