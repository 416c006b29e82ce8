package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestLimiter_BurstThenBlock(t *testing.T) {
	rdb := newMiniRedis(t)
	l := NewLimiter(rdb, 10, 2)

	ctx := context.Background()
	if err := l.Wait(ctx, "amazon"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := l.Wait(ctx, "amazon"); err != nil {
		t.Fatalf("second wait: %v", err)
	}

	// 桶已空，第三次必须阻塞等待补充。
	start := time.Now()
	if err := l.Wait(ctx, "amazon"); err != nil {
		t.Fatalf("third wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected blocking, elapsed=%v", elapsed)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	rdb := newMiniRedis(t)
	l := NewLimiter(rdb, 10, 1)

	ctx := context.Background()
	if err := l.Wait(ctx, "amazon"); err != nil {
		t.Fatalf("amazon wait: %v", err)
	}

	// amazon 的桶空了，但 tokopedia 的桶不受影响。
	start := time.Now()
	if err := l.Wait(ctx, "tokopedia"); err != nil {
		t.Fatalf("tokopedia wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected no blocking for separate key, elapsed=%v", elapsed)
	}
}

func TestLimiter_ContextTimeout(t *testing.T) {
	rdb := newMiniRedis(t)
	l := NewLimiter(rdb, 0.5, 1)

	if err := l.Wait(context.Background(), "blibli"); err != nil {
		t.Fatalf("warm wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "blibli")
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
}

func TestLimiter_DisabledPassesThrough(t *testing.T) {
	l := NewLimiter(nil, 0, 0)
	if err := l.Wait(context.Background(), "amazon"); err != nil {
		t.Fatalf("disabled limiter should pass through, got %v", err)
	}
}
