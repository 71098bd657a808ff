package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts hits per key in fixed Redis windows.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: redisClient, limit: int64(limit), window: window}
}

// Allow records a hit for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= r.limit, nil
}

// SubmitRateLimit limits guest submissions per party and client IP. Redis
// errors let the request through.
func (r *RateLimiter) SubmitRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r.limit <= 0 {
			return e.Next()
		}

		key := fmt.Sprintf("ratelimit:submit:%s:%s", e.Request.PathValue("userId"), e.RealIP())
		ok, err := r.Allow(e.Request.Context(), key)
		if err != nil {
			slog.Warn("Rate limiter unavailable", "key", key, "error", err)
			return e.Next()
		}
		if !ok {
			return apis.NewTooManyRequestsError("Too many requests. Please try again later.", nil)
		}
		return e.Next()
	}
}

// AntiBot rejects obvious crawlers before they reach guest endpoints.
func (r *RateLimiter) AntiBot() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
