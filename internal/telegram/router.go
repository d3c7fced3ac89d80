// Package telegram is the chat transport: the long-poll loop against the
// Bot API and the routing of inbound messages to the chat service.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/koalychatbot/koaly-telegram-bot/internal/chat"
	"github.com/koalychatbot/koaly-telegram-bot/internal/external"
)

// sender is the slice of the Bot API the router needs. *tgbotapi.BotAPI
// implements it; tests substitute a recorder.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Router wires Telegram updates to the chat service and the checkout flow.
type Router struct {
	bot      sender
	service  *chat.Service
	checkout external.CheckoutService
	logger   *slog.Logger
}

// NewRouter creates a Telegram update router.
func NewRouter(bot sender, service *chat.Service, checkout external.CheckoutService, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		bot:      bot,
		service:  service,
		checkout: checkout,
		logger:   logger,
	}
}

// HandleUpdate routes a single update. Commands are dispatched directly and
// never count against the daily quota; everything else is a conversational
// turn for the chat service.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		r.handleStart(ctx, chatID)
	case strings.HasPrefix(text, "/premium"):
		r.handlePremium(ctx, chatID)
	default:
		r.handleChatMessage(ctx, chatID, text)
	}
}

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	msg := tgbotapi.NewMessage(chatID, welcomeText)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	r.send(ctx, msg)
}

// handlePremium creates a personal checkout link on demand.
func (r *Router) handlePremium(ctx context.Context, chatID int64) {
	userID := formatChatID(chatID)
	url, err := r.checkout.CreateCheckoutSession(ctx, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "creating checkout session failed",
			"user_id", userID, "error", err)
		r.sendText(ctx, chatID, checkoutFailedText)
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(checkoutLinkFmt, url))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	r.send(ctx, msg)
}

// handleChatMessage runs one conversational turn. Every outcome maps to
// exactly one outbound message; failures already carry their diagnostics in
// the service log, the user only sees the fixed apology.
func (r *Router) handleChatMessage(ctx context.Context, chatID int64, text string) {
	userID := formatChatID(chatID)
	reply := r.service.HandleMessage(ctx, userID, text, time.Now())

	switch reply.Outcome {
	case chat.OutcomeReplied:
		r.sendText(ctx, chatID, reply.Text)
	case chat.OutcomeLimited:
		msg := tgbotapi.NewMessage(chatID, limitText)
		msg.ParseMode = tgbotapi.ModeMarkdown
		r.send(ctx, msg)
	default:
		r.sendText(ctx, chatID, apologyText)
	}
}

// NotifyPremiumActivated congratulates a freshly upgraded user. Called from
// the webhook handler after activation; a send failure is logged only.
func (r *Router) NotifyPremiumActivated(ctx context.Context, userID string) {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		r.logger.WarnContext(ctx, "cannot notify user with non-numeric id", "user_id", userID)
		return
	}
	r.sendText(ctx, chatID, premiumCongratsText)
}

func (r *Router) sendText(ctx context.Context, chatID int64, text string) {
	r.send(ctx, tgbotapi.NewMessage(chatID, text))
}

func (r *Router) send(ctx context.Context, msg tgbotapi.MessageConfig) {
	if _, err := r.bot.Send(msg); err != nil {
		r.logger.ErrorContext(ctx, "sending telegram message failed",
			"chat_id", msg.ChatID, "error", err)
	}
}

// formatChatID renders the numeric chat id as the string key used across
// the store, checkout metadata, and webhook correlation.
func formatChatID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
