package cache

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/VodScribe/internal/pkg/config"
)

// NewLimiterStorage returns shared storage for the fiber limiter, or nil
// (fiber's in-memory default) when no cache host is configured.
func NewLimiterStorage(cfg config.CacheConfig) fiber.Storage {
	if cfg.Host == "" {
		return nil
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		Database: DBLimiter,
		Reset:    false,
	})
}
