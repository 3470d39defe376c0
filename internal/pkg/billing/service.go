package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/VodScribe/app/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultLockTTL = 30 * time.Second

// Locker serializes mutations that share a correlation key across instances.
type Locker interface {
	// TryLock returns ok=false without error when somebody else holds key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Publisher emits committed billing events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

// Service provides webhook ingestion and subscription-state reconciliation.
type Service struct {
	repo      Repository
	locker    Locker
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
	lockTTL   time.Duration
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		locker:    NoopLocker{},
		publisher: NoopPublisher{},
		logger:    zap.NewNop(),
		now:       time.Now,
		lockTTL:   defaultLockTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// HandlePayPalEvent reconciles a verified PayPal delivery.
func (s *Service) HandlePayPalEvent(ctx context.Context, ev *PayPalEvent) (*Result, error) {
	in := WebhookEventInput{
		Provider:        models.ProviderPayPal,
		ProviderEventID: ev.ID,
		EventType:       ev.EventType,
		PayloadJSON:     string(ev.Raw),
		SignatureValid:  true,
	}
	return s.process(ctx, in, func() (string, error) { return paypalLockKey(ev) }, func(ctx context.Context) (*Result, error) {
		return s.applyPayPal(ctx, ev)
	})
}

// HandleKofiEvent reconciles a Ko-fi delivery whose token was verified.
func (s *Service) HandleKofiEvent(ctx context.Context, data *KofiData) (*Result, error) {
	in := WebhookEventInput{
		Provider:        models.ProviderKofi,
		ProviderEventID: data.MessageID,
		EventType:       data.Type,
		PayloadJSON:     string(data.Raw),
		SignatureValid:  true,
	}
	return s.process(ctx, in, func() (string, error) { return kofiLockKey(data), nil }, func(ctx context.Context) (*Result, error) {
		return s.applyKofi(ctx, data)
	})
}

// Replay feeds a stored payload through classification and reconciliation
// without authentication or delivery deduplication.
func (s *Service) Replay(ctx context.Context, provider string, payload []byte) (*Result, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case models.ProviderPayPal:
		ev, err := ParsePayPalEvent(payload)
		if err != nil {
			return nil, err
		}
		key, err := paypalLockKey(ev)
		if err != nil {
			return nil, err
		}
		return s.withLock(ctx, key, func() (*Result, error) { return s.applyPayPal(ctx, ev) })
	case models.ProviderKofi, "ko-fi":
		data, err := ParseKofiWebhook("application/json", payload)
		if err != nil {
			// Stored webhook events hold the bare data object.
			data, err = ParseKofiWebhook("application/json", []byte(`{"data":`+string(payload)+`}`))
		}
		if err != nil {
			return nil, err
		}
		return s.withLock(ctx, kofiLockKey(data), func() (*Result, error) { return s.applyKofi(ctx, data) })
	default:
		return nil, newError(ErrInvalidPayload, "Unknown provider "+provider, nil)
	}
}

// process records the delivery, skips it if it was already settled,
// serializes on the correlation key and stores the outcome on the event row.
func (s *Service) process(
	ctx context.Context,
	in WebhookEventInput,
	lockKey func() (string, error),
	apply func(context.Context) (*Result, error),
) (*Result, error) {
	created, event, err := s.RecordWebhookEvent(ctx, in)
	if err != nil {
		return nil, storageError("Failed to record webhook event", err)
	}
	if !created && event.Settled() {
		return s.duplicate(event), nil
	}

	res, err := s.run(ctx, event.ID, lockKey, apply)
	if errors.Is(err, ErrBusy) {
		return nil, err
	}
	if res != nil && res.Duplicate {
		return res, nil
	}
	if markErr := s.MarkWebhookProcessed(ctx, event.ID, err); markErr != nil {
		s.logger.Error("mark webhook processed failed", zap.Uint("webhook_event_id", event.ID), zap.Error(markErr))
	}
	if err != nil {
		s.logger.Warn("webhook processing failed",
			zap.String("provider", in.Provider),
			zap.String("event_type", in.EventType),
			zap.Error(err),
		)
		return nil, err
	}
	s.logger.Info("webhook processed",
		zap.String("provider", in.Provider),
		zap.String("event_type", in.EventType),
		zap.String("message", res.Message),
	)
	return res, nil
}

func (s *Service) run(ctx context.Context, eventID uint, lockKey func() (string, error), apply func(context.Context) (*Result, error)) (*Result, error) {
	key, err := lockKey()
	if err != nil {
		return nil, err
	}
	return s.withLock(ctx, key, func() (*Result, error) {
		// A concurrent delivery of the same event may have finished while we
		// waited for the key.
		current, err := s.repo.GetWebhookEvent(ctx, eventID)
		if err != nil {
			return nil, storageError("Failed to reload webhook event", err)
		}
		if current.Settled() {
			return s.duplicate(current), nil
		}
		return apply(ctx)
	})
}

func (s *Service) duplicate(event *models.WebhookEvent) *Result {
	s.logger.Info("duplicate webhook delivery",
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
	)
	return &Result{Success: true, Message: "Event already processed", Duplicate: true}
}

// withLock runs fn while holding the lock for key. A lock backend failure
// is logged and fn runs unserialized. An empty key needs no lock.
func (s *Service) withLock(ctx context.Context, key string, fn func() (*Result, error)) (*Result, error) {
	if key == "" {
		return fn()
	}
	release, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("lock backend unavailable, continuing without lock", zap.String("key", key), zap.Error(err))
		return fn()
	}
	if !ok {
		return nil, newError(ErrBusy, "Event for this record is already being processed", nil)
	}
	defer release()
	return fn()
}

func (s *Service) publish(ctx context.Context, routingKey string, ev BillingEvent) {
	ev.Type = routingKey
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now().UTC()
	}
	if err := s.publisher.Publish(ctx, routingKey, ev); err != nil {
		s.logger.Error("publish billing event failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

// paypalLockKey returns an empty key for event types that never mutate, so
// they are acknowledged whether or not they carry our order id.
func paypalLockKey(ev *PayPalEvent) (string, error) {
	if ClassifyPayPal(ev.EventType) == OutcomeIgnored {
		return "", nil
	}
	if ev.Resource.CustomID == "" {
		return "", newError(ErrMissingOrderID, "Missing order ID in webhook payload", nil)
	}
	return ByOrderID{OrderID: ev.Resource.CustomID}.LockKey(), nil
}

func kofiLockKey(data *KofiData) string {
	return ByUserEmail{Email: data.Email}.LockKey()
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}
