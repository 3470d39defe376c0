// Package bootstrap wires the application together with fx.
package bootstrap

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
	"github.com/ManuelReschke/VodScribe/internal/pkg/cache"
	"github.com/ManuelReschke/VodScribe/internal/pkg/config"
	"github.com/ManuelReschke/VodScribe/internal/pkg/database"
	"github.com/ManuelReschke/VodScribe/internal/pkg/eventbus"
	"github.com/ManuelReschke/VodScribe/internal/pkg/logging"
)

// CoreModule provides everything the billing service needs, without HTTP.
var CoreModule = fx.Options(
	fx.Provide(
		config.Load,
		provideLogger,
		provideDB,
		provideRedis,
		provideLocker,
		providePublisher,
		provideService,
	),
)

// Module is the full HTTP server.
var Module = fx.Options(
	CoreModule,
	HTTPModule,
)

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.IsDev(), cfg.LogLevel)
}

func provideDB(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

// provideRedis returns nil when no cache is configured.
func provideRedis(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *redis.Client {
	client := cache.NewClient(cfg.Cache, logger)
	if client != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return client.Close() },
		})
	}
	return client
}

func provideLocker(client *redis.Client, logger *zap.Logger) billing.Locker {
	if client == nil {
		logger.Warn("no cache configured, webhook deliveries are not serialized across instances")
		return billing.NoopLocker{}
	}
	return cache.NewLocker(client, logger)
}

func providePublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) eventbus.Publisher {
	var pub eventbus.Publisher = eventbus.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		rabbit, err := eventbus.NewRabbitMQPublisher(cfg.AMQPURL, logger)
		if err != nil {
			logger.Warn("falling back to log publisher", zap.Error(err))
		} else {
			pub = rabbit
		}
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return pub.Close() },
	})
	return pub
}

func provideService(db *gorm.DB, locker billing.Locker, pub eventbus.Publisher, logger *zap.Logger) *billing.Service {
	return billing.NewServiceFromDB(db,
		billing.WithLocker(locker),
		billing.WithPublisher(pub),
		billing.WithLogger(logger.Named("billing")),
	)
}
