package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/koalychatbot/koaly-telegram-bot/internal/config"
)

// Bot runs the long-poll loop and feeds updates to the router.
type Bot struct {
	api         *tgbotapi.BotAPI
	router      *Router
	pollTimeout int
	logger      *slog.Logger
}

// NewBot authenticates against the Bot API and builds the update loop.
// router may be nil at construction; callers that need the authenticated
// client to build the router first attach it with SetRouter before Run.
func NewBot(cfg config.TelegramConfig, router *Router, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token.Unmask())
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot api: %w", err)
	}
	api.Debug = false

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("telegram bot authorized", "username", api.Self.UserName)

	return &Bot{
		api:         api,
		router:      router,
		pollTimeout: int(cfg.PollTimeout.Seconds()),
		logger:      logger,
	}, nil
}

// API exposes the underlying client so the router can be built around the
// same authenticated instance.
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

// SetRouter attaches the update router. Must be called before Run when the
// bot was constructed without one.
func (b *Bot) SetRouter(router *Router) {
	b.router = router
}

// Run long-polls for updates until ctx is canceled. Each update is handled
// synchronously; per-user ordering then follows from Telegram's own update
// ordering plus the chat service's per-user lock.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("telegram long-poll loop started", "timeout_seconds", b.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram long-poll loop stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.router.HandleUpdate(ctx, upd)
		}
	}
}
