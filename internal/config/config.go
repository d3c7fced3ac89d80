// Package config defines the configuration for the Koaly bot process.
// Configuration is loaded once at startup and is immutable thereafter.
// It follows 12-Factor principles: values come from the OS environment,
// optionally seeded from a .env file for local development.
//
// Any missing required value or invalid format fails the process immediately
// on startup (fail fast).
package config

import (
	"time"

	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for tokens, API keys, and connection strings.
type SecretString = types.SecretString

// Config is the top-level configuration for the bot process. Sub-components
// receive only the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server     ServerConfig
	Telegram   TelegramConfig
	Store      StoreConfig
	Billing    BillingConfig
	Completion CompletionConfig
	Bot        BotConfig
	Security   SecurityConfig
}

// ServerConfig holds the HTTP listener settings for the webhook surface.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// TelegramConfig holds the chat transport credentials and polling settings.
type TelegramConfig struct {
	Token       SecretString `envconfig:"TELEGRAM_BOT_TOKEN" validate:"required"`
	PollTimeout time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30s"`
}

// StoreConfig selects and configures the user record store backend.
// The postgres driver matches the production deployment; redis is an
// alternative key-value backend; memory is for local runs and tests.
type StoreConfig struct {
	Driver string `envconfig:"STORE_DRIVER" default:"postgres" validate:"required,oneof=postgres redis memory"`

	DatabaseURL SecretString `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
	RedisURL    SecretString `envconfig:"REDIS_URL" validate:"required_if=Driver redis"`

	// Postgres pool tuning.
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// BillingConfig holds Stripe payment integration credentials and the
// checkout parameters for the premium upgrade.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	PremiumPriceID      string       `envconfig:"STRIPE_PRICE_PREMIUM" validate:"required"`
	SuccessURL          string       `envconfig:"CHECKOUT_SUCCESS_URL" default:"https://t.me/KoalyBot" validate:"url"`
	CancelURL           string       `envconfig:"CHECKOUT_CANCEL_URL" default:"https://t.me/KoalyBot" validate:"url"`
}

// CompletionConfig holds the completion provider credentials and model choice.
type CompletionConfig struct {
	OpenAIAPIKey SecretString  `envconfig:"OPENAI_API_KEY" validate:"required"`
	Model        string        `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	BaseURL      string        `envconfig:"OPENAI_BASE_URL"` // override for tests/proxies
	Timeout      time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
}

// BotConfig holds the conversational behavior knobs.
type BotConfig struct {
	// SystemPrompt is prepended to every completion request.
	SystemPrompt string `envconfig:"SYSTEM_PROMPT" default:"Eres Koaly, un amigo empático con sabiduría de psicólogo. Escucha con atención y responde con calidez y humanidad."`

	// QuotaTimezone fixes the clock used for daily quota rollover. All users
	// share this one location; the default keeps rollover at midnight UTC.
	QuotaTimezone string `envconfig:"QUOTA_TIMEZONE" default:"UTC"`
}

// SecurityConfig holds operator-facing access credentials.
type SecurityConfig struct {
	AdminAPIKey SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
}

// QuotaLocation resolves the configured quota timezone. The loader validates
// this at startup, so callers after LoadConfig may ignore the error.
func (c *Config) QuotaLocation() (*time.Location, error) {
	return time.LoadLocation(c.Bot.QuotaTimezone)
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
