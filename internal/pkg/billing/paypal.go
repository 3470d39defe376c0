package billing

import (
	"encoding/json"
	"strings"
)

// PayPalEvent is the subset of a PayPal webhook notification we act on.
type PayPalEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	CreateTime string         `json:"create_time"`
	Resource   PayPalResource `json:"resource"`

	Raw []byte `json:"-"`
}

type PayPalResource struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"`
	CustomID string        `json:"custom_id"`
	Amount   *PayPalAmount `json:"amount,omitempty"`
}

// PayPalAmount covers both the v1 (total/currency) and v2
// (value/currency_code) resource shapes.
type PayPalAmount struct {
	Total        string `json:"total"`
	Value        string `json:"value"`
	Currency     string `json:"currency"`
	CurrencyCode string `json:"currency_code"`
}

func (a *PayPalAmount) String() string {
	if a == nil {
		return ""
	}
	if a.Value != "" {
		return a.Value
	}
	return a.Total
}

func (a *PayPalAmount) CurrencyOrDefault() string {
	if a == nil {
		return ""
	}
	if a.CurrencyCode != "" {
		return a.CurrencyCode
	}
	return a.Currency
}

// ParsePayPalEvent decodes a webhook body. The raw bytes are kept for
// signature verification and the audit log.
func ParsePayPalEvent(raw []byte) (*PayPalEvent, error) {
	var ev PayPalEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, newError(ErrInvalidPayload, "Invalid PayPal webhook payload", err)
	}
	ev.EventType = strings.TrimSpace(ev.EventType)
	if ev.EventType == "" {
		return nil, newError(ErrInvalidPayload, "Invalid PayPal webhook payload", nil)
	}
	ev.Resource.CustomID = strings.TrimSpace(ev.Resource.CustomID)
	ev.Raw = raw
	return &ev, nil
}

// ClassifyPayPal maps a PayPal event type to an outcome.
func ClassifyPayPal(eventType string) Outcome {
	switch eventType {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.APPROVED":
		return OutcomePaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED":
		return OutcomePaymentFailed
	case "PAYMENT.CAPTURE.REVERSED":
		return OutcomePaymentReversed
	case "BILLING.SUBSCRIPTION.CANCELLED":
		return OutcomeSubscriptionCancelled
	case "BILLING.SUBSCRIPTION.EXPIRED":
		return OutcomeSubscriptionExpired
	default:
		return OutcomeIgnored
	}
}
