package billing

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	KofiTypeDonation     = "Donation"
	KofiTypeSubscription = "Subscription"
	KofiTypeShopOrder    = "Shop Order"
)

var kofiOrderIDPattern = regexp.MustCompile(`(?i)order[:\s]+([A-Za-z0-9-]+)`)

// KofiData is the "data" object of a Ko-fi webhook.
type KofiData struct {
	MessageID                  string `json:"message_id"`
	Timestamp                  string `json:"timestamp"`
	Type                       string `json:"type"`
	IsPublic                   bool   `json:"is_public"`
	FromName                   string `json:"from_name"`
	Email                      string `json:"email"`
	Message                    string `json:"message"`
	Amount                     Amount `json:"amount"`
	Currency                   string `json:"currency"`
	URL                        string `json:"url"`
	VerificationToken          string `json:"verification_token"`
	KofiTransactionID          string `json:"kofi_transaction_id"`
	TierName                   string `json:"tier_name"`
	SubscriptionTierName       string `json:"subscription_tier_name"`
	IsSubscriptionPayment      bool   `json:"is_subscription_payment"`
	IsFirstSubscriptionPayment bool   `json:"is_first_subscription_payment"`
	Recurrence                 string `json:"recurrence"`

	Raw []byte `json:"-"`
}

const errInvalidKofiPayload = "Invalid Ko-fi webhook payload"

// Amount holds a decimal amount that may arrive as a JSON string or number.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// ParseKofiWebhook accepts both a JSON envelope {"data": {...}} and the
// form-encoded delivery Ko-fi actually sends, where "data" is a JSON string.
func ParseKofiWebhook(contentType string, body []byte) (*KofiData, error) {
	var raw []byte
	if strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, newError(ErrInvalidPayload, errInvalidKofiPayload, err)
		}
		raw = []byte(form.Get("data"))
	} else {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, newError(ErrInvalidPayload, errInvalidKofiPayload, err)
		}
		raw = bytes.TrimSpace(envelope.Data)
		if len(raw) > 0 && raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, newError(ErrInvalidPayload, errInvalidKofiPayload, err)
			}
			raw = []byte(s)
		}
	}

	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, newError(ErrInvalidPayload, errInvalidKofiPayload, nil)
	}

	var data KofiData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, newError(ErrInvalidPayload, errInvalidKofiPayload, err)
	}
	data.Email = strings.TrimSpace(data.Email)
	data.Raw = raw
	return &data, nil
}

// ClassifyKofi maps a Ko-fi payload to an outcome.
func ClassifyKofi(d *KofiData) Outcome {
	switch d.Type {
	case KofiTypeDonation:
		msg := strings.ToLower(d.Message)
		if strings.Contains(msg, "subscription") || strings.Contains(msg, "plan") {
			return OutcomeDonationSubscription
		}
		return OutcomeDonation
	case KofiTypeSubscription:
		if d.IsFirstSubscriptionPayment {
			return OutcomeSubscriptionFirstPayment
		}
		return OutcomeSubscriptionRenewal
	default:
		return OutcomeIgnored
	}
}

// OrderID extracts "order: XYZ" from the supporter's message, falling back
// to the Ko-fi transaction id and finally to the current time.
func (d *KofiData) OrderID(now time.Time) string {
	if m := kofiOrderIDPattern.FindStringSubmatch(d.Message); len(m) == 2 {
		return m[1]
	}
	if d.KofiTransactionID != "" {
		return "KF-" + d.KofiTransactionID
	}
	return "KF-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// Tier returns the declared tier name, defaulting to "Starter".
func (d *KofiData) Tier() string {
	if d.TierName != "" {
		return d.TierName
	}
	if d.SubscriptionTierName != "" {
		return d.SubscriptionTierName
	}
	return "Starter"
}

func (d *KofiData) CurrencyOrDefault() string {
	if c := strings.TrimSpace(d.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return "USD"
}
