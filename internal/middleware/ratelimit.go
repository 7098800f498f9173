package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimiter is a fixed-window limiter local to this process.
type RateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	items  map[string]*rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window, items: map[string]*rateEntry{}}
}

func (rl *RateLimiter) Allow(_ context.Context, key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.items[key]
	if !ok || now.After(entry.reset) {
		rl.items[key] = &rateEntry{count: 1, reset: now.Add(rl.window)}
		return true
	}
	if entry.count >= rl.limit {
		return false
	}
	entry.count++
	return true
}

// RedisLimiter shares the fixed window across instances. Redis errors let the
// request through.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	log    *zap.Logger
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, log *zap.Logger) *RedisLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLimiter{client: client, limit: limit, window: window, log: log.Named("ratelimit")}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := "je:ratelimit:" + key
	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		rl.log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
		return true
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			rl.log.Warn("rate limit expire failed", zap.String("key", key), zap.Error(err))
		}
	}
	return count <= int64(rl.limit)
}
