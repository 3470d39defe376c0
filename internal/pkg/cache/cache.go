package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ManuelReschke/VodScribe/internal/pkg/config"
)

const (
	// DBCache holds locks and certificates; DBLimiter holds rate-limit counters.
	DBCache   = 0
	DBLimiter = 1
)

// NewClient connects to the Redis/Dragonfly cache. It returns nil when no
// cache host is configured, which callers treat as "run without Redis".
func NewClient(cfg config.CacheConfig, logger *zap.Logger) *redis.Client {
	if cfg.Host == "" {
		logger.Info("cache disabled, CACHE_HOST is empty")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       DBCache,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		logger.Warn("could not connect to cache", zap.String("addr", client.Options().Addr), zap.Error(err))
	} else {
		logger.Info("connected to cache", zap.String("addr", client.Options().Addr), zap.String("pong", pong))
	}
	return client
}
