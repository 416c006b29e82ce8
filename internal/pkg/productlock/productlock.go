// Package productlock 提供基于 Redis 的商品级处理租约。
//
// 同一个商品 URL 在任一时刻只允许一个 worker 处理，
// 防止并发周期对 last_price / in_stock 的丢失更新。
package productlock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tracker:lock:product:"

// Locker 为单个商品获取带 TTL 的处理租约。
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewLocker 创建商品锁。TTL 兜底租约泄漏：worker 崩溃后锁会自动过期。
func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{
		rdb: rdb,
		ttl: ttl,
	}
}

// TryAcquire 尝试获取商品的处理租约。
//
// 返回 false 表示别的 worker 正在处理同一商品，调用方应跳过本周期。
// Locker 未配置 Redis 时视为单实例部署，直接放行。
func (l *Locker) TryAcquire(ctx context.Context, productURL string) (bool, error) {
	if l == nil || l.rdb == nil || productURL == "" {
		return true, nil
	}
	key := keyPrefix + hashKey(productURL)
	ok, err := l.rdb.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("productlock setnx: %w", err)
	}
	return ok, nil
}

// Release 释放商品的处理租约。
func (l *Locker) Release(ctx context.Context, productURL string) error {
	if l == nil || l.rdb == nil || productURL == "" {
		return nil
	}
	key := keyPrefix + hashKey(productURL)
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("productlock del: %w", err)
	}
	return nil
}

func hashKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
