package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/VodScribe/app/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) applyPayPal(ctx context.Context, ev *PayPalEvent) (*Result, error) {
	outcome := ClassifyPayPal(ev.EventType)
	if outcome == OutcomeIgnored {
		s.logger.Info("unhandled paypal event type", zap.String("event_type", ev.EventType))
		return ack("Event acknowledged but not processed: " + ev.EventType), nil
	}

	orderID := ev.Resource.CustomID
	if orderID == "" {
		return nil, newError(ErrMissingOrderID, "Missing order ID in webhook payload", nil)
	}
	corr := ByOrderID{OrderID: orderID}

	switch outcome {
	case OutcomePaymentSucceeded:
		return s.settlePayment(ctx, corr, ev.Resource.ID, models.PaymentStatusCompleted, models.SubscriptionStatusActive)
	case OutcomePaymentFailed:
		return s.settlePayment(ctx, corr, ev.Resource.ID, models.PaymentStatusFailed, models.SubscriptionStatusInactive)
	case OutcomePaymentReversed:
		return s.settlePayment(ctx, corr, ev.Resource.ID, models.PaymentStatusReversed, models.SubscriptionStatusInactive)
	case OutcomeSubscriptionCancelled:
		return s.endSubscription(ctx, corr, ev.EventType, models.SubscriptionStatusCanceled)
	case OutcomeSubscriptionExpired:
		return s.endSubscription(ctx, corr, ev.EventType, models.SubscriptionStatusInactive)
	default:
		return nil, newError(ErrInvalidPayload, "Unsupported event type "+ev.EventType, nil)
	}
}

// settlePayment moves the payment to its final status and the linked
// subscription along with it, atomically.
func (s *Service) settlePayment(ctx context.Context, corr ByOrderID, transactionID, paymentStatus, subscriptionStatus string) (*Result, error) {
	var payment *models.Payment
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		p, err := corr.Resolve(ctx, repo)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"status": paymentStatus}
		if transactionID != "" {
			updates["transaction_id"] = transactionID
		}
		if err := repo.UpdatePayment(ctx, p.ID, updates); err != nil {
			return storageError("Failed to update payment status", err)
		}
		if p.SubscriptionID != nil {
			if err := repo.UpdateSubscription(ctx, *p.SubscriptionID, map[string]interface{}{"status": subscriptionStatus}); err != nil {
				return storageError("Failed to update subscription status", err)
			}
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	routingKey := EventPaymentCompleted
	switch paymentStatus {
	case models.PaymentStatusFailed:
		routingKey = EventPaymentFailed
	case models.PaymentStatusReversed:
		routingKey = EventPaymentReversed
	}
	s.publish(ctx, routingKey, BillingEvent{
		Provider:       models.ProviderPayPal,
		UserID:         payment.UserID,
		SubscriptionID: deref(payment.SubscriptionID),
		PaymentID:      payment.ID,
		OrderID:        corr.OrderID,
		Status:         paymentStatus,
	})
	return ack("Payment " + paymentStatus + " for order " + corr.OrderID), nil
}

func (s *Service) endSubscription(ctx context.Context, corr ByOrderID, eventType, status string) (*Result, error) {
	now := s.now()
	var payment *models.Payment
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		p, err := corr.Resolve(ctx, repo)
		if err != nil {
			return err
		}
		if p.SubscriptionID == nil {
			return newError(ErrSubscriptionNotFound, "Subscription not found for order "+corr.OrderID, nil)
		}
		if err := repo.UpdateSubscription(ctx, *p.SubscriptionID, map[string]interface{}{
			"status":   status,
			"end_date": now,
		}); err != nil {
			return storageError("Failed to update subscription status", err)
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	routingKey := EventSubscriptionCancelled
	if status == models.SubscriptionStatusInactive {
		routingKey = EventSubscriptionExpired
	}
	s.publish(ctx, routingKey, BillingEvent{
		Provider:       models.ProviderPayPal,
		UserID:         payment.UserID,
		SubscriptionID: *payment.SubscriptionID,
		OrderID:        corr.OrderID,
		Status:         status,
	})
	return ack("Subscription " + strings.ToLower(eventType) + " for order " + corr.OrderID), nil
}

func (s *Service) applyKofi(ctx context.Context, data *KofiData) (*Result, error) {
	// The payer is resolved before looking at the type, so an unknown email
	// fails even for types we would otherwise ignore.
	user, err := ByUserEmail{Email: data.Email}.Resolve(ctx, s.repo)
	if err != nil {
		return nil, err
	}

	now := s.now()
	orderID := data.OrderID(now)

	switch outcome := ClassifyKofi(data); outcome {
	case OutcomeDonation:
		return ack("Donation received from " + data.Email), nil
	case OutcomeDonationSubscription:
		amount, err := ParseAmount(string(data.Amount))
		if err != nil {
			return nil, err
		}
		plan := ResolvePlanByAmount(amount)
		sub, payment, err := s.upsertDonationSubscription(ctx, user, plan, data, amount, orderID, now)
		if err != nil {
			return nil, err
		}
		s.publishKofi(ctx, EventSubscriptionCreated, user, sub, payment)
		return ack("Subscription created for " + data.Email + " with plan " + plan.Name), nil
	case OutcomeSubscriptionFirstPayment:
		amount, err := ParseAmount(string(data.Amount))
		if err != nil {
			return nil, err
		}
		plan := ResolvePlanByTierName(data.Tier())
		sub, payment, err := s.insertKofiSubscription(ctx, user, plan, data, amount, orderID, now)
		if err != nil {
			return nil, err
		}
		s.publishKofi(ctx, EventSubscriptionCreated, user, sub, payment)
		return ack("Subscription created for " + data.Email), nil
	case OutcomeSubscriptionRenewal:
		amount, err := ParseAmount(string(data.Amount))
		if err != nil {
			return nil, err
		}
		plan := ResolvePlanByTierName(data.Tier())
		return s.renewKofiSubscription(ctx, user, plan, data, amount, orderID, now)
	default:
		s.logger.Info("unhandled ko-fi event type", zap.String("type", data.Type))
		return ack("Event acknowledged but not processed: " + data.Type), nil
	}
}

// upsertDonationSubscription overwrites the user's most recent subscription
// row, or creates one if the user has none. One-off payments buy 30 days.
func (s *Service) upsertDonationSubscription(
	ctx context.Context,
	user *models.User,
	plan Plan,
	data *KofiData,
	amount float64,
	orderID string,
	now time.Time,
) (*models.Subscription, *models.Payment, error) {
	end := now.Add(monthlyPeriod)
	var sub *models.Subscription
	var payment *models.Payment

	err := s.repo.Transaction(ctx, func(repo Repository) error {
		existing, err := repo.FindLatestSubscription(ctx, user.ID)
		switch {
		case err == nil:
			if err := repo.UpdateSubscription(ctx, existing.ID, map[string]interface{}{
				"plan":           plan.Name,
				"status":         models.SubscriptionStatusActive,
				"credits_used":   0,
				"credits_total":  plan.Credits,
				"payment_method": models.PaymentMethodKofi,
				"start_date":     now,
				"end_date":       end,
			}); err != nil {
				return storageError("Failed to create subscription", err)
			}
			sub, err = repo.FindSubscription(ctx, existing.ID)
			if err != nil {
				return storageError("Failed to create subscription", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			sub = newKofiSubscription(user.ID, plan, now, end)
			if err := createSubscription(ctx, repo, sub); err != nil {
				return err
			}
		default:
			return storageError("Failed to look up subscription", err)
		}

		payment = newKofiPayment(user.ID, sub.ID, data, amount, orderID)
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return storageError("Failed to record payment", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sub, payment, nil
}

// insertKofiSubscription always adds a new subscription row, so a user can
// hold several active rows; the newest one is current.
func (s *Service) insertKofiSubscription(
	ctx context.Context,
	user *models.User,
	plan Plan,
	data *KofiData,
	amount float64,
	orderID string,
	now time.Time,
) (*models.Subscription, *models.Payment, error) {
	sub := newKofiSubscription(user.ID, plan, now, now.Add(periodFor(data.Recurrence)))
	var payment *models.Payment

	err := s.repo.Transaction(ctx, func(repo Repository) error {
		if err := createSubscription(ctx, repo, sub); err != nil {
			return err
		}
		payment = newKofiPayment(user.ID, sub.ID, data, amount, orderID)
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return storageError("Failed to record payment", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sub, payment, nil
}

// renewKofiSubscription extends the current subscription from its existing
// end date. Without a current subscription it falls back to a fresh insert.
func (s *Service) renewKofiSubscription(
	ctx context.Context,
	user *models.User,
	plan Plan,
	data *KofiData,
	amount float64,
	orderID string,
	now time.Time,
) (*Result, error) {
	var sub *models.Subscription
	var payment *models.Payment
	created := false

	err := s.repo.Transaction(ctx, func(repo Repository) error {
		current, err := repo.FindCurrentSubscription(ctx, user.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			sub = newKofiSubscription(user.ID, plan, now, now.Add(periodFor(data.Recurrence)))
			if err := createSubscription(ctx, repo, sub); err != nil {
				return err
			}
		case err != nil:
			return storageError("Failed to look up subscription", err)
		default:
			base := now
			if current.EndDate != nil {
				base = *current.EndDate
			}
			end := base.Add(periodFor(data.Recurrence))
			if err := repo.UpdateSubscription(ctx, current.ID, map[string]interface{}{
				"status":       models.SubscriptionStatusActive,
				"end_date":     end,
				"credits_used": 0,
			}); err != nil {
				return storageError("Failed to renew subscription", err)
			}
			current.Status = models.SubscriptionStatusActive
			current.EndDate = &end
			current.CreditsUsed = 0
			sub = current
		}

		payment = newKofiPayment(user.ID, sub.ID, data, amount, orderID)
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return storageError("Failed to record payment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.publishKofi(ctx, EventSubscriptionCreated, user, sub, payment)
		return ack("New subscription created for " + data.Email), nil
	}
	s.publishKofi(ctx, EventSubscriptionRenewed, user, sub, payment)
	return ack("Subscription renewed for " + data.Email), nil
}

func (s *Service) publishKofi(ctx context.Context, routingKey string, user *models.User, sub *models.Subscription, payment *models.Payment) {
	s.publish(ctx, routingKey, BillingEvent{
		Provider:       models.ProviderKofi,
		UserID:         user.ID,
		SubscriptionID: sub.ID,
		PaymentID:      payment.ID,
		OrderID:        payment.OrderID,
		Plan:           sub.Plan,
		Status:         sub.Status,
	})
}

// createSubscription checks the row against the model constraints before
// inserting it.
func createSubscription(ctx context.Context, repo Repository, sub *models.Subscription) error {
	if err := sub.Validate(); err != nil {
		return newError(ErrInvalidPayload, "Invalid subscription data", err)
	}
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		return storageError("Failed to create subscription", err)
	}
	return nil
}

func newKofiSubscription(userID string, plan Plan, start, end time.Time) *models.Subscription {
	return &models.Subscription{
		UserID:        userID,
		Plan:          plan.Name,
		Status:        models.SubscriptionStatusActive,
		CreditsUsed:   0,
		CreditsTotal:  plan.Credits,
		PaymentMethod: models.PaymentMethodKofi,
		StartDate:     start,
		EndDate:       &end,
	}
}

func newKofiPayment(userID, subscriptionID string, data *KofiData, amount float64, orderID string) *models.Payment {
	return &models.Payment{
		UserID:         userID,
		SubscriptionID: &subscriptionID,
		Amount:         formatAmount(amount),
		Currency:       data.CurrencyOrDefault(),
		PaymentMethod:  models.PaymentMethodKofi,
		Status:         models.PaymentStatusCompleted,
		OrderID:        orderID,
		TransactionID:  data.KofiTransactionID,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
