package billing

import "time"

// Outcome is the closed set of things a provider event can mean for local state.
type Outcome string

const (
	OutcomeIgnored                  Outcome = "ignored"
	OutcomePaymentSucceeded         Outcome = "payment-succeeded"
	OutcomePaymentFailed            Outcome = "payment-failed"
	OutcomePaymentReversed          Outcome = "payment-reversed"
	OutcomeSubscriptionCancelled    Outcome = "subscription-cancelled"
	OutcomeSubscriptionExpired      Outcome = "subscription-expired"
	OutcomeDonation                 Outcome = "donation"
	OutcomeDonationSubscription     Outcome = "donation-subscription"
	OutcomeSubscriptionFirstPayment Outcome = "subscription-first-payment"
	OutcomeSubscriptionRenewal      Outcome = "subscription-renewal"
)

// Mutates reports whether the outcome writes payments or subscriptions.
func (o Outcome) Mutates() bool {
	switch o {
	case OutcomeIgnored, OutcomeDonation:
		return false
	default:
		return true
	}
}

// Result is the acknowledgement returned to the provider.
type Result struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func ack(message string) *Result {
	return &Result{Success: true, Message: message}
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// BillingEvent is published after a state change has been committed.
type BillingEvent struct {
	Type           string    `json:"type"`
	Provider       string    `json:"provider,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	PaymentID      string    `json:"payment_id,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	Plan           string    `json:"plan,omitempty"`
	Status         string    `json:"status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Routing keys for BillingEvent.
const (
	EventPaymentCompleted      = "billing.payment.completed"
	EventPaymentFailed         = "billing.payment.failed"
	EventPaymentReversed       = "billing.payment.reversed"
	EventSubscriptionCreated   = "billing.subscription.created"
	EventSubscriptionRenewed   = "billing.subscription.renewed"
	EventSubscriptionCancelled = "billing.subscription.canceled"
	EventSubscriptionExpired   = "billing.subscription.expired"
	EventCreditConsumed        = "billing.credit.consumed"
	EventAccountCreated        = "billing.account.created"
)
