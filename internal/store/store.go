// Package store provides durable persistence for user records. One record per
// chat id holds entitlement, daily usage, and the bounded conversation window.
//
// Three drivers implement the same contract: postgres (production), redis
// (alternative key-value backend), and memory (local runs and tests). Reads
// and writes of a single record are atomic within each driver; cross-call
// serialization per user id is the chat service's responsibility.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/koalychatbot/koaly-telegram-bot/internal/config"
	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// UserStore is the persistence contract for user records. Implementations
// return *types.AppError with code not_found_user when a record does not
// exist, and internal_store_error for backend failures.
type UserStore interface {
	// Get retrieves the record for the given id.
	Get(ctx context.Context, id string) (*types.UserRecord, error)

	// Create inserts a fresh record. It fails if the id already exists;
	// callers create records only while holding the per-user lock.
	Create(ctx context.Context, rec *types.UserRecord) error

	// Save persists the full record (premium, count, date, history) as a
	// single atomic write, replacing the stored state.
	Save(ctx context.Context, rec *types.UserRecord) error

	// ActivatePremium is an idempotent upsert: if no record exists, one is
	// created with premium set and zero usage fields; otherwise premium is
	// set and all other fields are left untouched. It returns the resulting
	// record and may be invoked any number of times for the same id.
	ActivatePremium(ctx context.Context, id string) (*types.UserRecord, error)

	// Ping reports backend reachability for the health endpoint.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// New builds the UserStore selected by cfg.Store.Driver.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (UserStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := OpenPostgres(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		s := NewPostgresStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensuring schema: %w", err)
		}
		logger.Info("user store ready", "driver", "postgres")
		return s, nil

	case "redis":
		s, err := NewRedisStore(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("opening redis: %w", err)
		}
		logger.Info("user store ready", "driver", "redis")
		return s, nil

	case "memory":
		logger.Warn("using in-memory user store; records are lost on restart")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// errNotFound builds the standard missing-record error.
func errNotFound(id string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundUser,
		"user record not found", nil, map[string]any{"user_id": id})
}

// errStore wraps a backend failure.
func errStore(op string, err error) *types.AppError {
	return types.NewAppError(types.ErrCodeStore, op+" failed", err)
}
