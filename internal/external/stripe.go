package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// stripeAPIBase is the default Stripe API base URL, overridable in tests
// through StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey  string
	PriceID    string
	SuccessURL string
	CancelURL  string
	BaseURL    string
	Logger     *slog.Logger
}

// StripeClient implements CheckoutService by calling the Stripe REST API
// through BaseClient, so checkout creation shares the circuit breaker,
// retries, and error mapping of every other outbound call, and tests can
// point it at an httptest server.
type StripeClient struct {
	base    *BaseClient
	cfg     StripeClientConfig
	baseURL string
	logger  *slog.Logger
}

// NewStripeClient creates a StripeClient with its own resilience stack.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(httpClient, "stripe", DefaultRetryPolicy(), "KoalyBot/1.0")
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a caller-provided
// BaseClient. Tests use it to control retry timing.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:    base,
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// CreateCheckoutSession creates a one-time-payment Checkout Session for the
// premium upgrade. The chat id travels as client_reference_id and as
// metadata[telegram_id]; the webhook reads either to activate the user.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, userID string) (string, error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("client_reference_id", userID)
	params.Set("metadata[telegram_id]", userID)
	params.Set("line_items[0][price]", s.cfg.PriceID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("success_url", s.cfg.SuccessURL)
	params.Set("cancel_url", s.cfg.CancelURL)

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"user_id", userID, "session_id", session.ID)
	return session.URL, nil
}

// doPost performs an authenticated POST with a form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	return s.base.Do(req)
}

// stripeErrorResponse is the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleErrorResponse reads a Stripe error response and maps it to an
// AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
		nil,
		map[string]any{
			"stripe_type": stripeErr.Error.Type,
			"stripe_code": stripeErr.Error.Code,
		},
	)
}

// wrapStripeError keeps AppErrors produced by BaseClient intact and wraps
// bare transport errors.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// StripeVerifier implements WebhookVerifier with stripe-go's webhook
// signature validation: HMAC-SHA256 plus timestamp tolerance.
type StripeVerifier struct{}

// Verify validates the payload against the Stripe-Signature header value.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	_, err := webhook.ConstructEventWithTolerance(payload, header, secret, 5*time.Minute)
	return err
}

var (
	_ CheckoutService = (*StripeClient)(nil)
	_ WebhookVerifier = (*StripeVerifier)(nil)
)
