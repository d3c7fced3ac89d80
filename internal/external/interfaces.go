package external

import "context"

// WebhookVerifier abstracts Stripe webhook signature checking so handlers
// can be tested without computing real HMAC signatures.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature
	// header and signing secret. Returns nil on success.
	Verify(payload []byte, header string, secret string) error
}

// CheckoutService creates payment links for the premium upgrade flow.
type CheckoutService interface {
	// CreateCheckoutSession builds a Stripe Checkout URL for the given chat
	// id. The id is carried as client_reference_id and metadata so the
	// completed-payment webhook can be correlated back to the user.
	CreateCheckoutSession(ctx context.Context, userID string) (checkoutURL string, err error)
}

// Stripe event type constants prevent magic strings in webhook handlers.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
)
