package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ManuelReschke/VodScribe/app/models"
	"github.com/ManuelReschke/VodScribe/internal/pkg/billing"
	"github.com/ManuelReschke/VodScribe/internal/pkg/billing/billingtest"
	"github.com/ManuelReschke/VodScribe/internal/pkg/config"
	"github.com/ManuelReschke/VodScribe/internal/pkg/usercontext"
)

const (
	testWebhookID = "WH-TEST-1"
	testKofiToken = "kofi-token"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	app    *fiber.App
	repo   *billingtest.Repository
	signer *billingtest.PayPalSigner
	user   *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := billingtest.NewRepository()
	signer := billingtest.NewPayPalSigner(t)
	svc := billing.NewService(repo,
		billing.WithLocker(billingtest.NewLocker()),
		billing.WithClock(func() time.Time { return testNow }),
	)
	cfg := &config.Config{
		AppEnv: "test",
		PayPal: config.PayPalConfig{WebhookID: testWebhookID},
		Kofi:   config.KofiConfig{VerificationToken: testKofiToken},
	}

	webhooks := NewWebhookController(svc, signer.Verifier(testWebhookID), testKofiToken, zap.NewNop())
	accounts := NewAccountController(svc, zap.NewNop())
	health := NewHealthController(cfg)
	health.now = func() time.Time { return testNow }

	app := fiber.New()
	app.Post("/api/webhooks/paypal", webhooks.HandlePayPalWebhook)
	app.Post("/api/webhooks/kofi", webhooks.HandleKofiWebhook)
	app.Get("/api/health", health.HandleHealth)
	app.Get("/api/debug", health.HandleDebug)

	// X-Test-User stands in for the JWT middleware.
	account := app.Group("/api/account", func(c *fiber.Ctx) error {
		if id := c.Get("X-Test-User"); id != "" {
			usercontext.Set(c, usercontext.UserContext{UserID: id, Email: c.Get("X-Test-Email"), IsLoggedIn: true})
		}
		return c.Next()
	})
	account.Post("/signup-profile", accounts.HandleSignupProfile)
	account.Get("/subscription", accounts.HandleGetSubscription)
	account.Post("/credits/consume", accounts.HandleConsumeCredit)
	account.Get("/payments", accounts.HandleListPayments)

	user := repo.AddUser(models.User{ID: "user-1", Name: "Sam", Email: "sam@example.com"})
	return &testEnv{app: app, repo: repo, signer: signer, user: user}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return resp.StatusCode, body
}

func (e *testEnv) paypalRequest(t *testing.T, body string, sign bool) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/paypal", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sign {
		h := e.signer.Headers(t, testWebhookID, []byte(body))
		req.Header.Set("PAYPAL-TRANSMISSION-ID", h.TransmissionID)
		req.Header.Set("PAYPAL-TRANSMISSION-TIME", h.TransmissionTime)
		req.Header.Set("PAYPAL-TRANSMISSION-SIG", h.TransmissionSig)
		req.Header.Set("PAYPAL-CERT-URL", h.CertURL)
		req.Header.Set("PAYPAL-AUTH-ALGO", h.AuthAlgo)
	}
	return req
}

func (e *testEnv) seedPending(orderID string) (*models.Subscription, *models.Payment) {
	sub := e.repo.AddSubscription(models.Subscription{
		UserID:        e.user.ID,
		Plan:          models.PlanQuickClips,
		Status:        models.SubscriptionStatusInactive,
		CreditsTotal:  8,
		PaymentMethod: models.PaymentMethodPayPal,
		StartDate:     testNow,
	})
	subID := sub.ID
	payment := e.repo.AddPayment(models.Payment{
		UserID:         e.user.ID,
		SubscriptionID: &subID,
		Amount:         "15.00",
		Currency:       "USD",
		PaymentMethod:  models.PaymentMethodPayPal,
		Status:         models.PaymentStatusPending,
		OrderID:        orderID,
	})
	return sub, payment
}

func TestPayPalWebhookCompletesPayment(t *testing.T) {
	e := newTestEnv(t)
	sub, payment := e.seedPending("VOD-20250101-0001")
	body := `{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","status":"COMPLETED","custom_id":"VOD-20250101-0001","amount":{"value":"15.00","currency_code":"USD"}}}`

	status, resp := e.do(t, e.paypalRequest(t, body, true))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, models.PaymentStatusCompleted, e.repo.Payment(payment.ID).Status)
	assert.Equal(t, "CAP-1", e.repo.Payment(payment.ID).TransactionID)
	assert.Equal(t, models.SubscriptionStatusActive, e.repo.Subscription(sub.ID).Status)

	// Redelivery is acknowledged without touching state again.
	status, resp = e.do(t, e.paypalRequest(t, body, true))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["duplicate"])
}

func TestPayPalWebhookRejections(t *testing.T) {
	valid := `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-2","custom_id":"VOD-2"}}`

	tests := []struct {
		name    string
		body    string
		sign    bool
		status  int
		message string
	}{
		{name: "malformed json", body: `{"event_type":`, sign: true, status: http.StatusBadRequest, message: "Invalid PayPal webhook payload"},
		{name: "missing event type", body: `{"id":"WH-3"}`, sign: true, status: http.StatusBadRequest, message: "Invalid PayPal webhook payload"},
		{name: "unsigned", body: valid, sign: false, status: http.StatusUnauthorized, message: "Invalid signature"},
		{name: "unknown order", body: `{"id":"WH-4","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-4","custom_id":"VOD-UNKNOWN"}}`, sign: true, status: http.StatusBadRequest, message: "Payment record not found for order VOD-UNKNOWN"},
		{name: "missing custom id", body: `{"id":"WH-5","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-5"}}`, sign: true, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			_, payment := e.seedPending("VOD-2")

			status, resp := e.do(t, e.paypalRequest(t, tt.body, tt.sign))
			assert.Equal(t, tt.status, status)
			assert.Equal(t, false, resp["success"])
			if tt.message != "" {
				assert.Equal(t, tt.message, resp["message"])
			}
			assert.Equal(t, models.PaymentStatusPending, e.repo.Payment(payment.ID).Status)
		})
	}
}

func TestPayPalWebhookTamperedBody(t *testing.T) {
	e := newTestEnv(t)
	_, payment := e.seedPending("VOD-T")
	signed := `{"id":"WH-T","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-T","custom_id":"VOD-T"}}`

	req := e.paypalRequest(t, signed, true)
	tampered := strings.Replace(signed, "CAP-T", "CAP-X", 1)
	req.Body = io.NopCloser(strings.NewReader(tampered))
	req.ContentLength = int64(len(tampered))

	status, _ := e.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.PaymentStatusPending, e.repo.Payment(payment.ID).Status)
}

func TestPayPalWebhookIgnoresUnclassified(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "with order id",
			body: `{"id":"WH-6","event_type":"BILLING.PLAN.CREATED","resource":{"id":"P-6","custom_id":"VOD-6"}}`,
		},
		{
			name: "without order id",
			body: `{"id":"WH-7","event_type":"BILLING.PLAN.CREATED","resource":{"id":"P-7"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			sub, payment := e.seedPending("VOD-6")
			before := e.repo.Subscription(sub.ID)

			status, resp := e.do(t, e.paypalRequest(t, tt.body, true))
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, true, resp["success"])
			assert.Equal(t, "Event acknowledged but not processed: BILLING.PLAN.CREATED", resp["message"])

			assert.Equal(t, before, e.repo.Subscription(sub.ID))
			assert.Equal(t, models.PaymentStatusPending, e.repo.Payment(payment.ID).Status)
		})
	}
}

func kofiForm(data string) *http.Request {
	form := url.Values{"data": {data}}
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/kofi", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestKofiWebhookFirstSubscription(t *testing.T) {
	e := newTestEnv(t)
	data := `{"verification_token":"kofi-token","message_id":"m-1","type":"Subscription","email":"sam@example.com","amount":"10.00","currency":"USD","kofi_transaction_id":"KT-1","tier_name":"Quick Clips","is_subscription_payment":true,"is_first_subscription_payment":true}`

	status, resp := e.do(t, kofiForm(data))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resp["success"])

	subs := e.repo.SubscriptionsOf(e.user.ID)
	require.Len(t, subs, 1)
	assert.Equal(t, models.PlanQuickClips, subs[0].Plan)
	assert.Equal(t, 8, subs[0].CreditsTotal)
	require.NotNil(t, subs[0].EndDate)
	assert.Equal(t, testNow.AddDate(0, 0, 30), *subs[0].EndDate)
	payments := e.repo.PaymentsOf(e.user.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, subs[0].ID, *payments[0].SubscriptionID)
}

func TestKofiWebhookRejections(t *testing.T) {
	tests := []struct {
		name    string
		req     func() *http.Request
		status  int
		message string
	}{
		{
			name:    "wrong token",
			req:     func() *http.Request { return kofiForm(`{"verification_token":"nope","type":"Subscription","email":"sam@example.com","is_first_subscription_payment":true,"tier_name":"Quick Clips"}`) },
			status:  http.StatusUnauthorized,
			message: "Invalid verification token",
		},
		{
			name:    "missing data",
			req:     func() *http.Request { return kofiForm("") },
			status:  http.StatusBadRequest,
			message: "Invalid Ko-fi webhook payload",
		},
		{
			name: "json without data",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/webhooks/kofi", strings.NewReader(`{"type":"Donation"}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			status:  http.StatusBadRequest,
			message: "Invalid Ko-fi webhook payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			status, resp := e.do(t, tt.req())
			assert.Equal(t, tt.status, status)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, tt.message, resp["message"])
			assert.Empty(t, e.repo.SubscriptionsOf(e.user.ID))
			assert.Empty(t, e.repo.PaymentsOf(e.user.ID))
		})
	}
}

func TestHealthAndDebug(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2025-03-10T12:00:00Z", body["timestamp"])

	status, body = e.do(t, httptest.NewRequest(http.MethodGet, "/api/debug", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "test", body["env"])
	assert.Equal(t, true, body["paypalConfigured"])
	assert.Equal(t, true, body["kofiConfigured"])
}

func accountRequest(method, path, userID, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
		req.Header.Set("X-Test-Email", "new@example.com")
	}
	return req
}

func TestAccountFlow(t *testing.T) {
	e := newTestEnv(t)
	const id = "6f1c1b5e-0000-4000-8000-000000000001"

	status, _ := e.do(t, accountRequest(http.MethodGet, "/api/account/subscription", id, ""))
	assert.Equal(t, http.StatusNotFound, status)

	status, body := e.do(t, accountRequest(http.MethodPost, "/api/account/signup-profile", id, `{"name":"New"}`))
	require.Equal(t, http.StatusCreated, status)
	sub := body["subscription"].(map[string]any)
	assert.Equal(t, "free", sub["plan"])
	assert.EqualValues(t, 1, sub["credits_total"])
	assert.Equal(t, "manual", sub["payment_method"])

	status, _ = e.do(t, accountRequest(http.MethodPost, "/api/account/signup-profile", id, `{"name":"New"}`))
	assert.Equal(t, http.StatusConflict, status)

	status, body = e.do(t, accountRequest(http.MethodGet, "/api/account/subscription", id, ""))
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["credits_remaining"])

	status, body = e.do(t, accountRequest(http.MethodPost, "/api/account/credits/consume", id, ""))
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["credits_remaining"])

	status, body = e.do(t, accountRequest(http.MethodPost, "/api/account/credits/consume", id, ""))
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "No Credits Remaining", body["message"])

	status, body = e.do(t, accountRequest(http.MethodGet, "/api/account/payments", id, ""))
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["payments"])
}

func TestConsumeWithoutSubscription(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.do(t, accountRequest(http.MethodPost, "/api/account/credits/consume", e.user.ID, ""))
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "No Active Subscription", body["message"])
}

func TestSignupRequiresLogin(t *testing.T) {
	e := newTestEnv(t)
	status, _ := e.do(t, accountRequest(http.MethodPost, "/api/account/signup-profile", "", `{"name":"x","email":"x@example.com"}`))
	assert.Equal(t, http.StatusUnauthorized, status)
}
