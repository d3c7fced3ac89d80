package external

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

func newTestStripeClient(t *testing.T, handler http.Handler) (*StripeClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := NewBaseClient(
		srv.Client(),
		"stripe-test",
		RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"KoalyBot/test",
		WithSleepFunc(noSleep),
	)
	client := NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey:  "sk_test_123",
		PriceID:    "price_premium",
		SuccessURL: "https://t.me/KoalyBot",
		CancelURL:  "https://t.me/KoalyBot",
		BaseURL:    srv.URL,
	})
	return client, srv
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotForm map[string]string

	client, _ := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_1","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
	}))

	url, err := client.CreateCheckoutSession(context.Background(), "12345")
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", url)
	assert.Equal(t, "/v1/checkout/sessions", gotPath)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.Equal(t, "payment", gotForm["mode"])
	assert.Equal(t, "12345", gotForm["client_reference_id"])
	assert.Equal(t, "12345", gotForm["metadata[telegram_id]"])
	assert.Equal(t, "price_premium", gotForm["line_items[0][price]"])
	assert.Equal(t, "1", gotForm["line_items[0][quantity]"])
	assert.Equal(t, "https://t.me/KoalyBot", gotForm["success_url"])
}

func TestCreateCheckoutSession_StripeErrorMapped(t *testing.T) {
	client, _ := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such price"}}`)
	}))

	_, err := client.CreateCheckoutSession(context.Background(), "12345")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
	assert.Equal(t, "resource_missing", appErr.Details["stripe_code"])
}

func TestCreateCheckoutSession_ServerErrorAfterRetries(t *testing.T) {
	client, _ := newTestStripeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.CreateCheckoutSession(context.Background(), "12345")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamUnavailable, appErr.Code)
}

// stripeSignature computes a valid Stripe-Signature header for payload.
func stripeSignature(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerifier(t *testing.T) {
	v := &StripeVerifier{}
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	t.Run("valid signature", func(t *testing.T) {
		header := stripeSignature(t, payload, secret, time.Now())
		assert.NoError(t, v.Verify(payload, header, secret))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := stripeSignature(t, payload, "whsec_other", time.Now())
		assert.Error(t, v.Verify(payload, header, secret))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := stripeSignature(t, payload, secret, time.Now())
		assert.Error(t, v.Verify([]byte(`{"id":"evt_2"}`), header, secret))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := stripeSignature(t, payload, secret, time.Now().Add(-time.Hour))
		assert.Error(t, v.Verify(payload, header, secret))
	})

	t.Run("garbage header", func(t *testing.T) {
		assert.Error(t, v.Verify(payload, "not-a-signature", secret))
	})
}
