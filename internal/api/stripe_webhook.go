// Package api is the HTTP surface of the bot: the Stripe webhook, the
// operator admin endpoint, and the health check. It is small by design; the
// conversational traffic flows through the Telegram transport, not here.
//
// The webhook endpoint is not behind auth middleware because Stripe calls it
// directly. Security comes from verifying the Stripe-Signature header.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koalychatbot/koaly-telegram-bot/internal/external"
	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads (64 KB). Real events are
// far smaller; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// PremiumActivator applies a verified premium upgrade to a user record.
// The chat service implements it.
type PremiumActivator interface {
	ActivatePremium(ctx context.Context, userID string) (*types.UserRecord, error)
}

// ActivationNotifier tells the user their upgrade landed. The Telegram
// transport implements it; a send failure must not fail the activation.
type ActivationNotifier interface {
	NotifyPremiumActivated(ctx context.Context, userID string)
}

// StripeWebhookHandler handles asynchronous payment events from Stripe.
type StripeWebhookHandler struct {
	verifier  external.WebhookVerifier
	activator PremiumActivator
	notifier  ActivationNotifier
	secret    string
	logger    *slog.Logger
}

// NewStripeWebhookHandler creates the handler. notifier may be nil; events
// are then processed without the congratulation message.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	activator PremiumActivator,
	notifier ActivationNotifier,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:  verifier,
		activator: activator,
		notifier:  notifier,
		secret:    secret,
		logger:    logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. Kept separate from the
// authenticated routes because this one is public.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes an incoming Stripe webhook delivery:
//
//  1. Read the raw body (size-limited) and the Stripe-Signature header.
//  2. Verify the signature before trusting a single byte of the payload.
//  3. Parse the event and act only on checkout.session.completed.
//  4. Return 200 even when internal processing fails; Stripe would otherwise
//     retry forever, and the failure is already logged for investigation.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignatureMissing,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignatureInvalid,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event JSON", "error", err)
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		// Acknowledge anyway so Stripe does not retry a payload that will
		// keep failing; the log line carries the event id for replay.
	}

	w.WriteHeader(http.StatusOK)
}

// routeEvent dispatches by event type. Everything except a completed
// checkout is acknowledged and ignored.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)
	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleCheckoutCompleted activates premium for the user who paid.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	userID := event.extractUserID()
	if userID == "" {
		return fmt.Errorf("checkout.session.completed: missing telegram id in event %s", event.ID)
	}

	if _, err := h.activator.ActivatePremium(ctx, userID); err != nil {
		return fmt.Errorf("activating premium for user %s: %w", userID, err)
	}

	if h.notifier != nil {
		h.notifier.NotifyPremiumActivated(ctx, userID)
	}
	return nil
}

// stripeWebhookEvent is a minimal representation of a Stripe event carrying
// just the fields this handler routes on. The full stripe.Event type stays
// out of the handler to keep tests simple.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// stripeCheckoutSessionObj holds the minimal fields of a completed checkout
// session. The user id travels in client_reference_id and in
// metadata.telegram_id; both are set by CreateCheckoutSession.
type stripeCheckoutSessionObj struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// extractUserID pulls the chat id out of the event payload, preferring
// client_reference_id over the metadata fallback.
func (e *stripeWebhookEvent) extractUserID() string {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return ""
	}
	var session stripeCheckoutSessionObj
	if err := json.Unmarshal(data.Object, &session); err != nil {
		return ""
	}
	if session.ClientReferenceID != "" {
		return session.ClientReferenceID
	}
	return session.Metadata["telegram_id"]
}
