// Package main is the entry point for the Koaly bot process.
//
// One process runs both surfaces: the Telegram long-poll loop for the
// conversation and an HTTP server for the Stripe webhook, the operator
// admin endpoint, and the health check. Graceful shutdown is handled via
// OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koalychatbot/koaly-telegram-bot/internal/api"
	"github.com/koalychatbot/koaly-telegram-bot/internal/chat"
	"github.com/koalychatbot/koaly-telegram-bot/internal/config"
	"github.com/koalychatbot/koaly-telegram-bot/internal/external"
	"github.com/koalychatbot/koaly-telegram-bot/internal/store"
	"github.com/koalychatbot/koaly-telegram-bot/internal/telegram"
)

// shutdownTimeout bounds how long in-flight requests may drain on shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("koaly bot starting",
		"environment", cfg.Environment,
		"store_driver", cfg.Store.Driver,
		"model", cfg.Completion.Model,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userStore, err := store.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}
	defer userStore.Close()

	quotaLoc, err := cfg.QuotaLocation()
	if err != nil {
		return fmt.Errorf("resolving quota timezone: %w", err)
	}

	provider := external.NewOpenAIProvider(cfg.Completion, logger)
	service := chat.NewService(userStore, provider, cfg.Bot.SystemPrompt, quotaLoc, logger)

	checkout := external.NewStripeClient(
		&http.Client{Timeout: 20 * time.Second},
		external.StripeClientConfig{
			SecretKey:  cfg.Billing.StripeSecretKey.Unmask(),
			PriceID:    cfg.Billing.PremiumPriceID,
			SuccessURL: cfg.Billing.SuccessURL,
			CancelURL:  cfg.Billing.CancelURL,
			Logger:     logger,
		},
	)

	bot, err := telegram.NewBot(cfg.Telegram, nil, logger)
	if err != nil {
		return fmt.Errorf("creating telegram bot: %w", err)
	}
	router := telegram.NewRouter(bot.API(), service, checkout, logger)
	bot.SetRouter(router)

	srv := api.NewServer(cfg, api.ServerDeps{
		Verifier:  &external.StripeVerifier{},
		Activator: service,
		Notifier:  router,
		Pinger:    userStore,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return bot.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Warn("http server shutdown error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("koaly bot stopped")
	return nil
}

// newLogger builds the process-wide structured JSON logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
