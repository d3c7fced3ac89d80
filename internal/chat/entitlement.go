package chat

import (
	"context"

	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// ActivatePremium applies a premium-upgrade event to the user record: an
// idempotent upsert that creates a premium record with zero usage for an
// unseen id, or flips the premium flag and leaves everything else untouched.
//
// The webhook transport delivers events at least once, so the same payment
// may arrive repeatedly; every invocation after the first is a no-op. The
// per-user lock serializes the activation against in-flight message handling
// for the same id.
func (s *Service) ActivatePremium(ctx context.Context, userID string) (*types.UserRecord, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	rec, err := s.store.ActivatePremium(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "premium activation failed",
			"user_id", userID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "premium activated", "user_id", userID)
	return rec, nil
}
