package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
	"github.com/ManuelReschke/VodScribe/internal/pkg/usercontext"
)

type AccountController struct {
	service *billing.Service
	logger  *zap.Logger
}

func NewAccountController(service *billing.Service, logger *zap.Logger) *AccountController {
	return &AccountController{service: service, logger: logger}
}

type signupProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// HandleSignupProfile creates the local profile and free plan for the token's subject.
func (ac *AccountController) HandleSignupProfile(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req signupProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid request body"})
	}
	if req.Email == "" {
		req.Email = usercontext.GetEmail(c)
	}

	user, sub, err := ac.service.CreateProfile(c.UserContext(), usercontext.GetUserID(c), req.Name, req.Email)
	if err != nil {
		return ac.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":         user,
		"subscription": sub,
	})
}

func (ac *AccountController) HandleGetSubscription(c *fiber.Ctx) error {
	sub, err := ac.service.CurrentSubscription(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": billing.MessageFor(err)})
		}
		return ac.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"subscription":      sub,
		"credits_remaining": sub.CreditsRemaining(),
	})
}

func (ac *AccountController) HandleConsumeCredit(c *fiber.Ctx) error {
	sub, err := ac.service.ConsumeCredit(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return ac.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"subscription":      sub,
		"credits_remaining": sub.CreditsRemaining(),
	})
}

func (ac *AccountController) HandleListPayments(c *fiber.Ctx) error {
	payments, err := ac.service.ListPayments(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return ac.fail(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments})
}

func (ac *AccountController) fail(c *fiber.Ctx, err error) error {
	status := billing.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		ac.logger.Error("account request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal_server_error", "message": "Internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": errorCode(status), "message": billing.MessageFor(err)})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "invalid_request"
	case fiber.StatusPaymentRequired:
		return "payment_required"
	case fiber.StatusConflict:
		return "conflict"
	case fiber.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}
