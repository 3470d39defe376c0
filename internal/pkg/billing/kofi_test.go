package billing

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKofiWebhookEnvelopes(t *testing.T) {
	inner := `{"message_id":"m-1","type":"Donation","email":" fan@example.com ","amount":"3.00","verification_token":"tok"}`

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "json object", contentType: "application/json", body: `{"data":` + inner + `}`},
		{name: "json string", contentType: "application/json", body: `{"data":` + quote(inner) + `}`},
		{name: "form", contentType: "application/x-www-form-urlencoded", body: url.Values{"data": {inner}}.Encode()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ParseKofiWebhook(tt.contentType, []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, "m-1", data.MessageID)
			assert.Equal(t, "fan@example.com", data.Email)
			assert.Equal(t, Amount("3.00"), data.Amount)
			assert.Equal(t, "tok", data.VerificationToken)
			assert.JSONEq(t, inner, string(data.Raw))
		})
	}
}

func TestParseKofiWebhookRejectsMissingData(t *testing.T) {
	for _, body := range []string{`{}`, `{"data":null}`, `not json`, `{"data":"{broken"}`} {
		_, err := ParseKofiWebhook("application/json", []byte(body))
		assert.ErrorIs(t, err, ErrInvalidPayload, body)
		assert.Equal(t, "Invalid Ko-fi webhook payload", MessageFor(err))
	}

	_, err := ParseKofiWebhook("application/x-www-form-urlencoded", []byte("other=1"))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestClassifyKofi(t *testing.T) {
	tests := []struct {
		data KofiData
		want Outcome
	}{
		{data: KofiData{Type: KofiTypeDonation, Message: "For my SUBSCRIPTION"}, want: OutcomeDonationSubscription},
		{data: KofiData{Type: KofiTypeDonation, Message: "upgrade my plan"}, want: OutcomeDonationSubscription},
		{data: KofiData{Type: KofiTypeDonation, Message: "coffee!"}, want: OutcomeDonation},
		{data: KofiData{Type: KofiTypeSubscription, IsFirstSubscriptionPayment: true}, want: OutcomeSubscriptionFirstPayment},
		{data: KofiData{Type: KofiTypeSubscription}, want: OutcomeSubscriptionRenewal},
		{data: KofiData{Type: KofiTypeShopOrder}, want: OutcomeIgnored},
		{data: KofiData{Type: "Commission"}, want: OutcomeIgnored},
	}

	for _, tt := range tests {
		d := tt.data
		assert.Equal(t, tt.want, ClassifyKofi(&d), "%+v", tt.data)
	}
}

func TestKofiOrderID(t *testing.T) {
	now := time.UnixMilli(1736000000000)

	tests := []struct {
		data KofiData
		want string
	}{
		{data: KofiData{Message: "Order: VOD-20250101-0001 thanks"}, want: "VOD-20250101-0001"},
		{data: KofiData{Message: "my order abc-123", KofiTransactionID: "tx"}, want: "abc-123"},
		{data: KofiData{Message: "no id here", KofiTransactionID: "00000000-1111"}, want: "KF-00000000-1111"},
		{data: KofiData{}, want: "KF-1736000000000"},
	}

	for _, tt := range tests {
		d := tt.data
		assert.Equal(t, tt.want, d.OrderID(now))
	}
}

func TestKofiTierAndCurrency(t *testing.T) {
	assert.Equal(t, "Gold", (&KofiData{TierName: "Gold", SubscriptionTierName: "Silver"}).Tier())
	assert.Equal(t, "Silver", (&KofiData{SubscriptionTierName: "Silver"}).Tier())
	assert.Equal(t, "Starter", (&KofiData{}).Tier())
	assert.Equal(t, "EUR", (&KofiData{Currency: "eur"}).CurrencyOrDefault())
	assert.Equal(t, "USD", (&KofiData{}).CurrencyOrDefault())
}

func TestVerifyKofiToken(t *testing.T) {
	assert.NoError(t, VerifyKofiToken("secret", "secret"))
	assert.ErrorIs(t, VerifyKofiToken("secret", "guess"), ErrInvalidToken)
	assert.ErrorIs(t, VerifyKofiToken("secret", ""), ErrInvalidToken)
	assert.ErrorIs(t, VerifyKofiToken("", ""), ErrInvalidToken)
	assert.ErrorIs(t, VerifyKofiToken("", "anything"), ErrInvalidToken)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
