package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"Routinely/config"
	"Routinely/pkg/errors"
	"Routinely/pkg/logger"
	"Routinely/pkg/response"
	"Routinely/storage/redis"
)

// RateLimitConfig API 限流配置，按客户端 IP 滑动窗口计数
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
	KeyPrefix   string
}

// RateLimiter Redis zset 滑动窗口限流器
type RateLimiter struct {
	config RateLimitConfig
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{config: cfg}
}

func (rl *RateLimiter) key(c *app.RequestContext) string {
	return redis.Key(rl.config.KeyPrefix, "ip", c.ClientIP())
}

// Allow 滑动窗口判定：移除过期记录、登记本次请求、数窗口内总量
func (rl *RateLimiter) Allow(ctx context.Context, c *app.RequestContext) (bool, error) {
	key := rl.key(c)
	now := time.Now()
	windowStart := now.Add(-rl.config.Window)

	pipe := redis.Client().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	return int(zcardCmd.Val()) <= rl.config.MaxRequests, nil
}

// RateLimitMiddleware API 全局限流，配置关闭时为穿透 no-op
func RateLimitMiddleware() app.HandlerFunc {
	if !config.Cfg.RateLimitEnabled {
		return func(ctx context.Context, c *app.RequestContext) {
			c.Next(ctx)
		}
	}

	limiter := NewRateLimiter(RateLimitConfig{
		Window:      time.Second,
		MaxRequests: config.Cfg.RateLimitRPS,
		KeyPrefix:   "rate:limit",
	})

	return func(ctx context.Context, c *app.RequestContext) {
		allowed, err := limiter.Allow(ctx, c)
		if err != nil {
			// Redis 不可用时放行，限流是保护措施不是功能
			logger.Logger.Warn("Rate limiter unavailable, allowing request",
				zap.Error(err),
			)
			c.Next(ctx)
			return
		}

		if !allowed {
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}
