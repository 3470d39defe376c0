package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/VodScribe/app/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateProfile stores the local user row for a freshly signed-up identity
// and gives it the free plan.
func (s *Service) CreateProfile(ctx context.Context, userID, name, email string) (*models.User, *models.Subscription, error) {
	user, err := models.CreateUser(strings.TrimSpace(userID), strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, nil, newError(ErrInvalidPayload, "Invalid profile data", err)
	}

	now := s.now()
	sub := &models.Subscription{
		UserID:        user.ID,
		Plan:          FreePlan.Name,
		Status:        models.SubscriptionStatusActive,
		CreditsUsed:   0,
		CreditsTotal:  FreePlan.Credits,
		PaymentMethod: models.PaymentMethodManual,
		StartDate:     now,
	}

	err = s.repo.Transaction(ctx, func(repo Repository) error {
		if _, err := repo.FindUserByID(ctx, user.ID); err == nil {
			return newError(ErrUserExists, "User already exists", nil)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storageError("Failed to look up user", err)
		}
		if _, err := repo.FindUserByEmail(ctx, user.Email); err == nil {
			return newError(ErrUserExists, "Email already registered", nil)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return storageError("Failed to look up user", err)
		}

		if err := repo.CreateUser(ctx, user); err != nil {
			return storageError("Failed to create user", err)
		}
		if err := createSubscription(ctx, repo, sub); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, EventAccountCreated, BillingEvent{
		UserID:         user.ID,
		SubscriptionID: sub.ID,
		Plan:           sub.Plan,
		Status:         sub.Status,
	})
	return user, sub, nil
}

// CurrentSubscription returns the user's newest active subscription.
func (s *Service) CurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.repo.FindCurrentSubscription(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrSubscriptionNotFound, "No active subscription", nil)
	}
	if err != nil {
		return nil, storageError("Failed to load subscription", err)
	}
	return sub, nil
}

// ConsumeCredit uses one credit of the current subscription. The bound is
// checked by the database update itself, so concurrent callers cannot push
// credits_used past credits_total.
func (s *Service) ConsumeCredit(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.repo.FindCurrentSubscription(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(ErrNoActiveSubscription, "No Active Subscription", nil)
	}
	if err != nil {
		return nil, storageError("Failed to load subscription", err)
	}

	ok, err := s.repo.IncrementCreditsUsed(ctx, sub.ID)
	if err != nil {
		return nil, storageError("Failed to consume credit", err)
	}
	if !ok {
		return nil, newError(ErrNoCreditsRemaining, "No Credits Remaining", nil)
	}

	updated, err := s.repo.FindSubscription(ctx, sub.ID)
	if err != nil {
		return nil, storageError("Failed to load subscription", err)
	}
	s.logger.Debug("credit consumed",
		zap.String("user_id", userID),
		zap.String("subscription_id", updated.ID),
		zap.Int("credits_used", updated.CreditsUsed),
		zap.Int("credits_total", updated.CreditsTotal),
	)
	s.publish(ctx, EventCreditConsumed, BillingEvent{
		UserID:         userID,
		SubscriptionID: updated.ID,
		Plan:           updated.Plan,
		Status:         updated.Status,
	})
	return updated, nil
}

// ListPayments returns the user's payments, newest first.
func (s *Service) ListPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	payments, err := s.repo.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, storageError("Failed to load payments", err)
	}
	return payments, nil
}
