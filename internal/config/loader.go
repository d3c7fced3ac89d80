// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Load .env file via godotenv (non-fatal if absent; never overrides
//     variables already present in the environment).
//  2. Use envconfig to process struct tags and populate the Config struct.
//  3. Validate the struct using go-playground/validator.
//  4. Resolve the quota timezone to catch bad names at startup.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the bot configuration from the environment.
func LoadConfig() (*Config, error) {
	// Step 1: .env seed for local development. Missing file is fine.
	_ = godotenv.Load()

	// Step 2: process envconfig tags. The empty prefix means the exact tag
	// values are used (envconfig:"PORT" reads PORT directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 3: struct validation.
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration failed validation",
			Err:     err,
		}
	}

	// Step 4: the quota timezone must resolve; a typo here would silently
	// break day rollover for every user.
	if _, err := cfg.QuotaLocation(); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("invalid QUOTA_TIMEZONE %q", cfg.Bot.QuotaTimezone),
			Err:     err,
		}
	}

	return &cfg, nil
}
