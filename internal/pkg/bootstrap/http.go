package bootstrap

import (
	"context"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ManuelReschke/VodScribe/app/controllers"
	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
	"github.com/ManuelReschke/VodScribe/internal/pkg/cache"
	"github.com/ManuelReschke/VodScribe/internal/pkg/config"
	"github.com/ManuelReschke/VodScribe/internal/pkg/middleware"
	"github.com/ManuelReschke/VodScribe/internal/pkg/router"
)

const openAPIFile = "public/docs/v1/openapi.yml"

// HTTPModule provides the fiber app and starts it with the fx lifecycle.
var HTTPModule = fx.Options(
	fx.Provide(
		providePayPalVerifier,
		provideWebhookController,
		controllers.NewHealthController,
		controllers.NewAccountController,
		provideTokenVerifier,
		provideLimiterStorage,
		router.NewWebhookRouter,
		router.NewApiRouter,
		NewApplication,
	),
	fx.Invoke(StartServer),
)

func providePayPalVerifier(cfg *config.Config, client *redis.Client, logger *zap.Logger) *billing.PayPalVerifier {
	opts := []billing.PayPalVerifierOption{
		billing.WithVerifierLogger(logger.Named("paypal")),
	}
	if client != nil {
		opts = append(opts, billing.WithCertCache(cache.NewCertCache(client)))
	}
	if len(cfg.PayPal.CertHosts) > 0 {
		opts = append(opts, billing.WithAllowedCertHosts(cfg.PayPal.CertHosts...))
	}
	if !cfg.PayPalConfigured() {
		logger.Warn("PAYPAL_WEBHOOK_ID is not set, every PayPal delivery will be rejected")
	}
	return billing.NewPayPalVerifier(cfg.PayPal.WebhookID, opts...)
}

func provideWebhookController(svc *billing.Service, verifier *billing.PayPalVerifier, cfg *config.Config, logger *zap.Logger) *controllers.WebhookController {
	if !cfg.KofiConfigured() {
		logger.Warn("KOFI_VERIFICATION_TOKEN is not set, every Ko-fi delivery will be rejected")
	}
	return controllers.NewWebhookController(svc, verifier, cfg.Kofi.VerificationToken, logger.Named("webhooks"))
}

func provideTokenVerifier(cfg *config.Config) *middleware.TokenVerifier {
	return middleware.NewTokenVerifier(cfg.JWTSecret)
}

func provideLimiterStorage(cfg *config.Config) fiber.Storage {
	return cache.NewLimiterStorage(cfg.Cache)
}

// NewApplication builds the fiber app with middleware, docs and routes.
func NewApplication(cfg *config.Config, log *zap.Logger, webhooks *router.WebhookRouter, api *router.ApiRouter) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "VodScribe billing",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath, ok := findBasePath(openAPIFile); ok {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + openAPIFile,
			Path:     "v1",
			Title:    "VodScribe billing API",
		}))
	} else {
		log.Warn("openapi document not found, /docs/api/v1 disabled")
	}

	// ROUTER
	router.InstallRouter(app, webhooks, api)

	return app
}

func findBasePath(file string) (string, bool) {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/vodscribe to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		if _, err := os.Stat(path + file); err == nil {
			return path, true
		}
	}
	return "", false
}

func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, logger *zap.Logger, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("starting HTTP server", zap.String("addr", cfg.ListenAddr()))
				if err := app.Listen(cfg.ListenAddr()); err != nil {
					logger.Error("HTTP server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return app.ShutdownWithContext(ctx)
		},
	})
}
