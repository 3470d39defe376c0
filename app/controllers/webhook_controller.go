package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
)

const webhookTimeout = 15 * time.Second

// SignatureVerifier authenticates a PayPal delivery.
type SignatureVerifier interface {
	Verify(ctx context.Context, h billing.PayPalHeaders, body []byte) error
}

type WebhookController struct {
	service   *billing.Service
	verifier  SignatureVerifier
	kofiToken string
	logger    *zap.Logger
}

func NewWebhookController(service *billing.Service, verifier SignatureVerifier, kofiToken string, logger *zap.Logger) *WebhookController {
	return &WebhookController{
		service:   service,
		verifier:  verifier,
		kofiToken: kofiToken,
		logger:    logger,
	}
}

// HandlePayPalWebhook parses, authenticates and reconciles a PayPal delivery.
func (wc *WebhookController) HandlePayPalWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ev, err := billing.ParsePayPalEvent(rawBody)
	if err != nil {
		return wc.respond(c, "paypal", nil, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	headers := billing.PayPalHeaders{
		TransmissionID:   strings.TrimSpace(c.Get("Paypal-Transmission-Id")),
		TransmissionTime: strings.TrimSpace(c.Get("Paypal-Transmission-Time")),
		TransmissionSig:  strings.TrimSpace(c.Get("Paypal-Transmission-Sig")),
		CertURL:          strings.TrimSpace(c.Get("Paypal-Cert-Url")),
		AuthAlgo:         strings.TrimSpace(c.Get("Paypal-Auth-Algo")),
	}
	if err := wc.verifier.Verify(ctx, headers, rawBody); err != nil {
		return wc.respond(c, "paypal", nil, err)
	}

	res, err := wc.service.HandlePayPalEvent(ctx, ev)
	return wc.respond(c, "paypal", res, err)
}

// HandleKofiWebhook accepts JSON and the form-encoded body Ko-fi sends.
func (wc *WebhookController) HandleKofiWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	data, err := billing.ParseKofiWebhook(c.Get(fiber.HeaderContentType), rawBody)
	if err != nil {
		return wc.respond(c, "kofi", nil, err)
	}
	if err := billing.VerifyKofiToken(wc.kofiToken, data.VerificationToken); err != nil {
		return wc.respond(c, "kofi", nil, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res, err := wc.service.HandleKofiEvent(ctx, data)
	return wc.respond(c, "kofi", res, err)
}

func (wc *WebhookController) respond(c *fiber.Ctx, provider string, res *billing.Result, err error) error {
	if err != nil {
		status := billing.StatusFor(err)
		if status >= fiber.StatusInternalServerError {
			wc.logger.Error("webhook failed", zap.String("provider", provider), zap.Int("status", status), zap.Error(err))
		} else {
			wc.logger.Info("webhook rejected", zap.String("provider", provider), zap.Int("status", status), zap.Error(err))
		}
		return c.Status(status).JSON(billing.Result{Success: false, Message: billing.MessageFor(err)})
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
