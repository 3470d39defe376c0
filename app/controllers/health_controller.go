package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/VodScribe/internal/pkg/config"
)

type HealthController struct {
	cfg *config.Config
	now func() time.Time
}

func NewHealthController(cfg *config.Config) *HealthController {
	return &HealthController{cfg: cfg, now: time.Now}
}

func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": hc.now().UTC().Format(time.RFC3339),
	})
}

// HandleDebug reports which providers are configured, never the secrets.
func (hc *HealthController) HandleDebug(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"env":              hc.cfg.AppEnv,
		"paypalConfigured": hc.cfg.PayPalConfigured(),
		"kofiConfigured":   hc.cfg.KofiConfigured(),
	})
}
