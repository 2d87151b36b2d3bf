package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	RedisClient redis.Cmdable
	Key         string // Key prefix for Redis
	Limit       int    // Maximum number of requests per Period
	Period      time.Duration
}

// RateLimiter is a fixed-window limiter keyed by route and client IP. When
// Redis is unavailable requests are let through and the failure is logged.
func RateLimiter(cfg RateLimiterConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Limit <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("%s:%s:%s", cfg.Key, c.FullPath(), c.ClientIP())

		// INCR and TTL run in one transaction. A window without an expiry,
		// whether new or left behind by a failed EXPIRE, gets one here.
		var incr *redis.IntCmd
		var ttlCmd *redis.DurationCmd
		_, err := cfg.RedisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			ttlCmd = pipe.TTL(ctx, key)
			return nil
		})
		if err != nil {
			zap.L().Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		count, ttl := incr.Val(), ttlCmd.Val()
		if ttl < 0 {
			if err := cfg.RedisClient.Expire(ctx, key, cfg.Period).Err(); err != nil {
				zap.L().Warn("rate limiter expire failed", zap.String("key", key), zap.Error(err))
			}
			ttl = cfg.Period
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))

		if count > int64(cfg.Limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
			c.Header("Retry-After", strconv.FormatInt(int64(ttl.Seconds()), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded, please try again later"})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(cfg.Limit)-count, 10))
		c.Next()
	}
}

// IPRateLimiter limits requests per client IP.
func IPRateLimiter(limit int, period time.Duration, redisClient redis.Cmdable) gin.HandlerFunc {
	return RateLimiter(RateLimiterConfig{
		RedisClient: redisClient,
		Key:         "rate:ip",
		Limit:       limit,
		Period:      period,
	})
}
