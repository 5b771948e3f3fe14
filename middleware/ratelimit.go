package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ariebrainware/hospital-dashboard/config"
	"github.com/ariebrainware/hospital-dashboard/util"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultRateLimit  = 60
	defaultRateWindow = time.Minute
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func rateLimitKey(staffOrIP, endpoint string) string {
	return fmt.Sprintf("ratelimit:%s:%s", endpoint, staffOrIP)
}

// RateLimiter caps mutation requests per staff member (or client IP when
// unauthenticated) and route. Without Redis every request is allowed.
func RateLimiter(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultRateLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultRateWindow
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		who := clientIP
		if staffID, ok := GetStaffID(c); ok {
			who = staffID
		}

		allowed, err := checkRateLimit(c.Request.Context(), rateLimitKey(who, endpoint), cfg.Limit, cfg.Window)
		if err != nil {
			// Redis trouble must not take the forms down with it.
			log.Warn().Err(err).Str("endpoint", endpoint).Msg("rate limit check failed")
			c.Next()
			return
		}

		if !allowed {
			util.LogRateLimitExceeded(clientIP, endpoint)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, util.APIResponse{
				Success: false,
				Error:   "rate limit exceeded",
				Msg:     "Too many requests. Please try again later.",
				Data:    map[string]interface{}{},
			})
			return
		}

		c.Next()
	}
}

// checkRateLimit returns true if the request identified by key is within limit.
func checkRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return true, nil
	}

	pipe := rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return incrCmd.Val() <= int64(limit), nil
}
