package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/VodScribe/app/models"
	"gorm.io/gorm"
)

// EventCorrelator links a provider event back to the local record it
// mutates. PayPal events carry our order id; Ko-fi events only carry the
// payer's email.
type EventCorrelator[T any] interface {
	// LockKey identifies the record for per-key serialization.
	LockKey() string
	Resolve(ctx context.Context, repo Repository) (T, error)
}

// ByOrderID correlates through the payment row written at checkout.
type ByOrderID struct {
	OrderID string
}

var _ EventCorrelator[*models.Payment] = ByOrderID{}

func (c ByOrderID) LockKey() string {
	return "order:" + c.OrderID
}

func (c ByOrderID) Resolve(ctx context.Context, repo Repository) (*models.Payment, error) {
	payment, err := repo.FindPaymentByOrderID(ctx, c.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrPaymentNotFound, "Payment record not found for order "+c.OrderID, nil)
	}
	if err != nil {
		return nil, storageError("Failed to look up payment", err)
	}
	return payment, nil
}

// ByUserEmail correlates by email. Stored emails are lowercased at signup,
// so the lookup is normalized the same way.
type ByUserEmail struct {
	Email string
}

var _ EventCorrelator[*models.User] = ByUserEmail{}

func (c ByUserEmail) LockKey() string {
	return "user:" + c.normalized()
}

func (c ByUserEmail) normalized() string {
	return strings.ToLower(strings.TrimSpace(c.Email))
}

func (c ByUserEmail) Resolve(ctx context.Context, repo Repository) (*models.User, error) {
	email := c.normalized()
	if email == "" {
		return nil, newError(ErrUserNotFound, "User not found for email ", nil)
	}
	user, err := repo.FindUserByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrUserNotFound, "User not found for email "+c.Email, nil)
	}
	if err != nil {
		return nil, storageError("Failed to look up user", err)
	}
	return user, nil
}
