package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client)
}

func TestSetGetJSON(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type payload struct{ Attempts int }
	if err := c.SetJSON(ctx, "k1", payload{Attempts: 3}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got payload
	if err := c.GetJSON(ctx, "k1", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.Attempts != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestGetJSONMiss(t *testing.T) {
	c := newTestCache(t)
	var got struct{}
	if err := c.GetJSON(context.Background(), "missing", &got); err != ErrMiss {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestIncrSetsTTLOnlyOnFirstIncrement(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "counter", time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("first incr: n=%d err=%v", n, err)
	}
	n, err = c.Incr(ctx, "counter", time.Hour)
	if err != nil || n != 2 {
		t.Fatalf("second incr: n=%d err=%v", n, err)
	}
}

func TestCompareAndSwapJSONSerializesConcurrentIncrements(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	type counter struct{ N int }

	bump := func() error {
		return c.CompareAndSwapJSON(ctx, "cas-counter", func(exists bool, raw []byte) (any, time.Duration, bool, error) {
			var v counter
			if exists {
				if err := json.Unmarshal(raw, &v); err != nil {
					return nil, 0, false, err
				}
			}
			v.N++
			return v, time.Minute, false, nil
		})
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- bump()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("bump: %v", err)
		}
	}

	var got counter
	if err := c.GetJSON(ctx, "cas-counter", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got.N != n {
		t.Fatalf("expected no lost increments, got %d want %d", got.N, n)
	}
}

func TestCompareAndSwapJSONSkipLeavesValueUnchanged(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	if err := c.SetJSON(ctx, "skip-key", map[string]int{"n": 1}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	err := c.CompareAndSwapJSON(ctx, "skip-key", func(exists bool, raw []byte) (any, time.Duration, bool, error) {
		return nil, 0, true, nil
	})
	if err != nil {
		t.Fatalf("CompareAndSwapJSON: %v", err)
	}
	var got map[string]int
	if err := c.GetJSON(ctx, "skip-key", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got["n"] != 1 {
		t.Fatalf("expected skip to leave value unchanged, got %+v", got)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	c := newTestCache(t)
	if err := c.Delete(context.Background(), "nope"); err != nil {
		t.Fatalf("delete of missing key should succeed: %v", err)
	}
}

func TestScanDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	for _, k := range []string{"token_family:a", "token_family:b", "other:c"} {
		_ = c.SetJSON(ctx, k, "x", time.Minute)
	}
	n, err := c.ScanDelete(ctx, TokenFamilyPattern)
	if err != nil {
		t.Fatalf("ScanDelete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	exists, _ := c.Exists(ctx, "other:c")
	if !exists {
		t.Fatalf("unrelated key should survive")
	}
}
