package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/internal/config"
)

// RateLimit enforces a per-user sliding window over Redis. Runs after Auth;
// requests without a user context fall back to the client IP. Redis being
// unavailable fails open so a cache outage never takes the API down with it.
func RateLimit(redisClient *redis.Client, cfg *config.RateLimitConfig, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || cfg.Requests <= 0 {
			c.Next()
			return
		}

		subject, ok := UserFromContext(c)
		if !ok {
			subject = c.ClientIP()
		}

		allowed, remaining, resetAt, err := checkLimit(c.Request.Context(), redisClient, subject, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to check rate limit")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"subject": subject,
				"limit":   cfg.Requests,
			}).Warn("Rate limit exceeded")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func checkLimit(ctx context.Context, client *redis.Client, subject string, cfg *config.RateLimitConfig) (bool, int, time.Time, error) {
	now := time.Now()
	windowStart := now.Add(-cfg.Window)
	key := "rate_limit:" + subject

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pipe := client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, cfg.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := int(countCmd.Val()) + 1
	remaining := cfg.Requests - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= cfg.Requests, remaining, now.Add(cfg.Window), nil
}
