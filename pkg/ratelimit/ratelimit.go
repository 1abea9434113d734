// Package ratelimit 基于 Redis 的分布式限流，多实例共享同一配额
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimiter 限流端口
type RateLimiter interface {
	// Allow 判定给定 key 在 limit 规则下是否放行
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit 限流规则
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// Result 单次限流判定结果
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// RedisRateLimiter 基于 Redis GCRA 算法的限流实现
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRedisRateLimiter 创建 Redis 限流器
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
	}
}

// Allow 判定请求是否放行
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	res, err := r.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  limit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
