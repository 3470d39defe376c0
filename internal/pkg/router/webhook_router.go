package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/VodScribe/app/controllers"
)

type WebhookRouter struct {
	webhooks *controllers.WebhookController
}

func NewWebhookRouter(webhooks *controllers.WebhookController) *WebhookRouter {
	return &WebhookRouter{webhooks: webhooks}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	hooks := app.Group("/api/webhooks")
	hooks.Post("/paypal", h.webhooks.HandlePayPalWebhook)
	hooks.Post("/kofi", h.webhooks.HandleKofiWebhook)
}
