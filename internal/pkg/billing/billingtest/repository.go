// Package billingtest provides an in-memory billing.Repository for tests.
package billingtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/VodScribe/app/models"
	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
	"gorm.io/gorm"
)

// Repository keeps rows in maps. Transaction snapshots every table and
// restores the snapshot when fn fails, which is enough to observe rollback.
type Repository struct {
	mu sync.Mutex

	Users         map[string]models.User
	Subscriptions map[string]models.Subscription
	Payments      map[string]models.Payment
	Events        map[uint]models.WebhookEvent

	nextEventID uint
	seq         int
	base        time.Time

	// Fail* inject errors into the matching write.
	FailCreatePayment      error
	FailUpdatePayment      error
	FailCreateSubscription error
	FailUpdateSubscription error
}

var _ billing.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		Users:         map[string]models.User{},
		Subscriptions: map[string]models.Subscription{},
		Payments:      map[string]models.Payment{},
		Events:        map[uint]models.WebhookEvent{},
		base:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// stamp hands out strictly increasing timestamps so "newest" is well defined.
func (r *Repository) stamp() time.Time {
	r.seq++
	return r.base.Add(time.Duration(r.seq) * time.Second)
}

func (r *Repository) Transaction(ctx context.Context, fn func(repo billing.Repository) error) error {
	r.mu.Lock()
	users := cloneMap(r.Users)
	subs := cloneMap(r.Subscriptions)
	payments := cloneMap(r.Payments)
	events := cloneMap(r.Events)
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.Users, r.Subscriptions, r.Payments, r.Events = users, subs, payments, events
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *Repository) AddUser(u models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.stamp()
	}
	r.Users[u.ID] = u
	return &u
}

func (r *Repository) AddSubscription(s models.Subscription) *models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = s.BeforeCreate(nil)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.stamp()
	}
	r.Subscriptions[s.ID] = s
	return &s
}

func (r *Repository) AddPayment(p models.Payment) *models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = p.BeforeCreate(nil)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.stamp()
	}
	r.Payments[p.ID] = p
	return &p
}

func (r *Repository) Subscription(id string) models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Subscriptions[id]
}

func (r *Repository) Payment(id string) models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Payments[id]
}

func (r *Repository) SubscriptionsOf(userID string) []models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.Subscriptions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Repository) PaymentsOf(userID string) []models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.Payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Repository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.Users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.Users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Users[user.ID]; ok {
		return errors.New("duplicate key users.id")
	}
	user.CreatedAt = r.stamp()
	user.UpdatedAt = user.CreatedAt
	r.Users[user.ID] = *user
	return nil
}

func (r *Repository) FindPaymentByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *models.Payment
	for _, p := range r.Payments {
		if p.OrderID != orderID {
			continue
		}
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			cp := p
			found = &cp
		}
	}
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return found, nil
}

func (r *Repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreatePayment != nil {
		return r.FailCreatePayment
	}
	_ = payment.BeforeCreate(nil)
	payment.CreatedAt = r.stamp()
	payment.UpdatedAt = payment.CreatedAt
	r.Payments[payment.ID] = *payment
	return nil
}

func (r *Repository) UpdatePayment(ctx context.Context, id string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdatePayment != nil {
		return r.FailUpdatePayment
	}
	p, ok := r.Payments[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			p.Status = v.(string)
		case "transaction_id":
			p.TransactionID = v.(string)
		}
	}
	p.UpdatedAt = r.stamp()
	r.Payments[id] = p
	return nil
}

func (r *Repository) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	return r.PaymentsOf(userID), nil
}

func (r *Repository) FindSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (r *Repository) FindLatestSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	subs := r.SubscriptionsOf(userID)
	if len(subs) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &subs[0], nil
}

func (r *Repository) FindCurrentSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	for _, s := range r.SubscriptionsOf(userID) {
		if s.Status == models.SubscriptionStatusActive {
			cp := s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *Repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCreateSubscription != nil {
		return r.FailCreateSubscription
	}
	_ = sub.BeforeCreate(nil)
	sub.CreatedAt = r.stamp()
	sub.UpdatedAt = sub.CreatedAt
	r.Subscriptions[sub.ID] = *sub
	return nil
}

func (r *Repository) UpdateSubscription(ctx context.Context, id string, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdateSubscription != nil {
		return r.FailUpdateSubscription
	}
	s, ok := r.Subscriptions[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "plan":
			s.Plan = v.(string)
		case "status":
			s.Status = v.(string)
		case "credits_used":
			s.CreditsUsed = v.(int)
		case "credits_total":
			s.CreditsTotal = v.(int)
		case "payment_method":
			s.PaymentMethod = v.(string)
		case "start_date":
			s.StartDate = v.(time.Time)
		case "end_date":
			end := v.(time.Time)
			s.EndDate = &end
		}
	}
	s.UpdatedAt = r.stamp()
	r.Subscriptions[id] = s
	return nil
}

func (r *Repository) IncrementCreditsUsed(ctx context.Context, subscriptionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Subscriptions[subscriptionID]
	if !ok || s.Status != models.SubscriptionStatusActive || s.CreditsUsed >= s.CreditsTotal {
		return false, nil
	}
	s.CreditsUsed++
	r.Subscriptions[subscriptionID] = s
	return true, nil
}

func (r *Repository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.Events {
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			return false, &e, nil
		}
	}
	r.nextEventID++
	event.ID = r.nextEventID
	event.CreatedAt = r.stamp()
	r.Events[event.ID] = *event
	stored := *event
	return true, &stored, nil
}

func (r *Repository) GetWebhookEvent(ctx context.Context, id uint) (*models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.Events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (r *Repository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.Events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := r.stamp()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	r.Events[id] = e
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
