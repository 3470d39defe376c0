package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers webhook routes before the rate-limited API so
// provider deliveries never count against a client's limit.
func InstallRouter(app *fiber.App, webhooks *WebhookRouter, api *ApiRouter) {
	setup(app, webhooks, api)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
