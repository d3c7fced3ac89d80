package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koalychatbot/koaly-telegram-bot/internal/config"
	"github.com/koalychatbot/koaly-telegram-bot/internal/external"
)

// Server is the HTTP chassis: router, middleware chain, and the handlers
// for the webhook, admin, and health endpoints.
type Server struct {
	router chi.Router
	http   *http.Server
	pinger Pinger
	logger *slog.Logger
}

// ServerDeps carries the collaborators the server wires into its handlers.
type ServerDeps struct {
	Verifier  external.WebhookVerifier
	Activator PremiumActivator
	Notifier  ActivationNotifier
	Pinger    Pinger
}

// NewServer builds the router with the standard middleware chain and mounts
// all routes.
func NewServer(cfg *config.Config, deps ServerDeps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: chi.NewRouter(),
		pinger: deps.Pinger,
		logger: logger,
	}

	s.router.Use(Recoverer(logger))
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(logger, []string{"Authorization", "Stripe-Signature", "X-Admin-Key"}))

	s.router.Get("/health", s.HandleHealth)

	webhookHandler := NewStripeWebhookHandler(
		deps.Verifier,
		deps.Activator,
		deps.Notifier,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		logger,
	)
	webhookHandler.RegisterRoutes(s.router)

	adminHandler := NewAdminHandler(deps.Activator, cfg.Security.AdminAPIKey.Unmask(), logger)
	s.router.Route("/v1/admin", adminHandler.RegisterRoutes)

	s.http = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP listener until it fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
