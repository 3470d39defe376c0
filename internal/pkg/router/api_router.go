package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"github.com/ManuelReschke/VodScribe/app/controllers"
	"github.com/ManuelReschke/VodScribe/internal/pkg/middleware"
	"github.com/ManuelReschke/VodScribe/internal/pkg/usercontext"
)

const (
	accountRequestsPerMinute = 60
)

type ApiRouter struct {
	health   *controllers.HealthController
	accounts *controllers.AccountController
	tokens   *middleware.TokenVerifier
	storage  fiber.Storage
	logger   *zap.Logger
}

// NewApiRouter wires the dashboard API. storage may be nil, in which case
// the limiter keeps its counters in memory.
func NewApiRouter(
	health *controllers.HealthController,
	accounts *controllers.AccountController,
	tokens *middleware.TokenVerifier,
	storage fiber.Storage,
	logger *zap.Logger,
) *ApiRouter {
	return &ApiRouter{
		health:   health,
		accounts: accounts,
		tokens:   tokens,
		storage:  storage,
		logger:   logger,
	}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/health", h.health.HandleHealth)
	api.Get("/debug", h.health.HandleDebug)

	account := api.Group("/account",
		cors.New(cors.Config{
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
			AllowMethods: "GET,POST,OPTIONS",
		}),
		middleware.RequireAPIAuth(h.tokens, h.logger),
		limiter.New(limiter.Config{
			Max:        accountRequestsPerMinute,
			Expiration: time.Minute,
			Storage:    h.storage,
			KeyGenerator: func(c *fiber.Ctx) string {
				return "account:" + usercontext.GetUserID(c)
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
			},
		}),
	)
	account.Post("/signup-profile", h.accounts.HandleSignupProfile)
	account.Get("/subscription", h.accounts.HandleGetSubscription)
	account.Post("/credits/consume", h.accounts.HandleConsumeCredit)
	account.Get("/payments", h.accounts.HandleListPayments)
}
