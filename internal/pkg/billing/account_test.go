package billing_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VodScribe/app/models"
	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
)

func TestCreateProfileGivesFreePlan(t *testing.T) {
	f := newFixture(t)

	user, sub, err := f.svc.CreateProfile(context.Background(), "user-2", "Robin", "Robin@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "robin@example.com", user.Email)
	assert.Equal(t, models.PlanFree, sub.Plan)
	assert.Equal(t, 1, sub.CreditsTotal)
	assert.Equal(t, 0, sub.CreditsUsed)
	assert.Equal(t, models.PaymentMethodManual, sub.PaymentMethod)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Nil(t, sub.EndDate)
	assert.Len(t, f.repo.SubscriptionsOf("user-2"), 1)
	assert.Equal(t, []string{billing.EventAccountCreated}, f.publisher.RoutingKeys())
}

func TestCreateProfileRejectsExistingUser(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.CreateProfile(context.Background(), f.user.ID, "Sam", "other@example.com")
	assert.ErrorIs(t, err, billing.ErrUserExists)

	_, _, err = f.svc.CreateProfile(context.Background(), "user-3", "Sam", f.user.Email)
	assert.ErrorIs(t, err, billing.ErrUserExists)

	_, _, err = f.svc.CreateProfile(context.Background(), "user-4", "", "bad")
	assert.ErrorIs(t, err, billing.ErrInvalidPayload)
}

func TestCreateProfileRollsBackUserWhenSubscriptionFails(t *testing.T) {
	f := newFixture(t)
	f.repo.FailCreateSubscription = assert.AnError

	_, _, err := f.svc.CreateProfile(context.Background(), "user-5", "Kai", "kai@example.com")
	require.ErrorIs(t, err, billing.ErrStorage)
	_, err = f.repo.FindUserByID(context.Background(), "user-5")
	assert.Error(t, err)
}

func TestCurrentSubscriptionPicksNewestActive(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CurrentSubscription(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	f.repo.AddSubscription(models.Subscription{UserID: f.user.ID, Plan: models.PlanStarter, Status: models.SubscriptionStatusActive, CreditsTotal: 2, PaymentMethod: models.PaymentMethodKofi})
	newest := f.repo.AddSubscription(models.Subscription{UserID: f.user.ID, Plan: models.PlanQuickClips, Status: models.SubscriptionStatusActive, CreditsTotal: 8, PaymentMethod: models.PaymentMethodKofi})
	f.repo.AddSubscription(models.Subscription{UserID: f.user.ID, Plan: models.PlanCreatorPro, Status: models.SubscriptionStatusCanceled, CreditsTotal: 50, PaymentMethod: models.PaymentMethodPayPal})

	got, err := f.svc.CurrentSubscription(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, newest.ID, got.ID)
}

func TestConsumeCreditGuard(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ConsumeCredit(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
	assert.Equal(t, "No Active Subscription", billing.MessageFor(err))

	sub := f.repo.AddSubscription(models.Subscription{
		UserID: f.user.ID, Plan: models.PlanStarter, Status: models.SubscriptionStatusActive,
		CreditsTotal: 2, PaymentMethod: models.PaymentMethodKofi,
	})

	got, err := f.svc.ConsumeCredit(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CreditsUsed)

	_, err = f.svc.ConsumeCredit(context.Background(), f.user.ID)
	require.NoError(t, err)

	_, err = f.svc.ConsumeCredit(context.Background(), f.user.ID)
	assert.ErrorIs(t, err, billing.ErrNoCreditsRemaining)
	assert.Equal(t, "No Credits Remaining", billing.MessageFor(err))
	assert.Equal(t, 2, f.repo.Subscription(sub.ID).CreditsUsed)
}

func TestConsumeCreditConcurrentCallersCannotOvershoot(t *testing.T) {
	f := newFixture(t)
	sub := f.repo.AddSubscription(models.Subscription{
		UserID: f.user.ID, Plan: models.PlanQuickClips, Status: models.SubscriptionStatusActive,
		CreditsTotal: 8, PaymentMethod: models.PaymentMethodPayPal,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ConsumeCredit(context.Background(), f.user.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, succeeded)
	assert.Equal(t, 8, f.repo.Subscription(sub.ID).CreditsUsed)
}

func TestListPaymentsNewestFirst(t *testing.T) {
	f := newFixture(t)
	older := f.repo.AddPayment(models.Payment{UserID: f.user.ID, Amount: "3.00", Status: models.PaymentStatusCompleted})
	newer := f.repo.AddPayment(models.Payment{UserID: f.user.ID, Amount: "10.00", Status: models.PaymentStatusCompleted})
	f.repo.AddPayment(models.Payment{UserID: "someone-else", Amount: "1.00"})

	payments, err := f.svc.ListPayments(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, newer.ID, payments[0].ID)
	assert.Equal(t, older.ID, payments[1].ID)
}
