// Package ratelimit 提供按站点划分的分布式令牌桶。
//
// 桶状态放在 Redis 里，多个 worker 实例共享同一配额，
// 避免并发部署时对单一站点的抓取速率叠加。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/Roosevelttt/ecommerce-tracker-scraper/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// ErrWaitTimeout 表示在 ctx 截止前没有等到令牌。
var ErrWaitTimeout = errors.New("rate limit wait timeout")

const keyPrefix = "tracker:ratelimit:"

// 令牌桶脚本：按毫秒补充令牌，返回 {是否放行, 建议等待毫秒数}。
const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

if rate <= 0 or burst <= 0 then
  return {1, 0}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

local delta = math.max(0, now - ts)
tokens = math.min(burst, tokens + (delta * rate) / 1000.0)

local allowed = tokens >= 1
local wait_ms = 0
if allowed then
  tokens = tokens - 1
else
  wait_ms = math.ceil((1 - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms}
`

// Limiter 是按 key（站点标识）划分的令牌桶限流器。
type Limiter struct {
	rdb    *redis.Client
	rate   float64 // token/s
	burst  float64
	script *redis.Script
}

// NewLimiter 创建限流器。rate 或 burst 为 0 时限流关闭。
func NewLimiter(rdb *redis.Client, rate, burst float64) *Limiter {
	return &Limiter{
		rdb:    rdb,
		rate:   rate,
		burst:  burst,
		script: redis.NewScript(tokenBucketLua),
	}
}

// Wait 阻塞直到拿到 key 对应桶的一个令牌，或 ctx 截止。
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil || l.rdb == nil || l.rate <= 0 || l.burst <= 0 {
		return nil
	}

	const jitterMax = 10 * time.Millisecond
	start := time.Now()
	for {
		allowed, waitMs, err := l.tryAcquire(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		wait += time.Duration(rand.Int63n(int64(jitterMax)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ErrWaitTimeout
		case <-timer.C:
		}
	}
}

func (l *Limiter) tryAcquire(ctx context.Context, key string) (bool, int64, error) {
	now := time.Now().UnixMilli()
	res, err := l.script.Run(ctx, l.rdb, []string{keyPrefix + key}, l.rate, l.burst, now).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("ratelimit invalid result")
	}
	return toInt64(values[0]) == 1, toInt64(values[1]), nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
