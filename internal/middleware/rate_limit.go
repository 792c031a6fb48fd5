package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "rl:payments:"

// AccountRateLimit caps requests per account per minute with a Redis counter.
// Without Redis, or when Redis fails, requests pass.
func AccountRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject, ok := AccountID(c)
		if !ok {
			subject = c.IP()
		}
		window := time.Now().UTC().Truncate(time.Minute).Unix()
		key := fmt.Sprintf("%s%s:%d", rateLimitPrefix, subject, window)

		pipe := cache.TxPipeline()
		incr := pipe.Incr(c.UserContext(), key)
		pipe.Expire(c.UserContext(), key, time.Minute)
		if _, err := pipe.Exec(c.UserContext()); err != nil {
			logger.Warn("rate limit counter failed", slog.String("key", key), slog.Any("error", err))
			return c.Next()
		}
		if incr.Val() > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "too many payment requests, try again later")
		}
		return c.Next()
	}
}
