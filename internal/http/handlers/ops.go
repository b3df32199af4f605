package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"imgpack/internal/infra/logging"
)

// ReadinessProbe reports ready when Redis answers a ping, or always when no
// Redis is configured.
func ReadinessProbe(rdb *redis.Client) func(*fiber.Ctx) bool {
	return func(c *fiber.Ctx) bool {
		if rdb == nil {
			return true
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logging.Warn("Readiness check failed", "error", err)
			return false
		}
		return true
	}
}
