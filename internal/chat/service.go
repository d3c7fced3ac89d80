package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/koalychatbot/koaly-telegram-bot/internal/store"
	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

// CompletionProvider is the outbound contract to the language-model service.
// Implementations live in internal/external; the service only needs this one
// synchronous call with its failure modes mapped to *types.AppError.
type CompletionProvider interface {
	// Complete sends the ordered prompt and returns the assistant reply text.
	Complete(ctx context.Context, prompt []types.ChatMessage) (string, error)
}

// Outcome classifies the result of handling one inbound message.
type Outcome int

const (
	// OutcomeReplied carries the assistant reply text.
	OutcomeReplied Outcome = iota
	// OutcomeLimited means the daily quota denied the turn.
	OutcomeLimited
	// OutcomeFailed means the provider or the store failed before a reply
	// existed; the transport sends the fixed apology.
	OutcomeFailed
)

// Reply is the result of one handled message. Every path through the service
// yields a Reply — failures are classified, never raised to the transport.
type Reply struct {
	Outcome Outcome
	// Text is the assistant reply when Outcome is OutcomeReplied.
	Text string
	// Err is the operator-facing cause when Outcome is OutcomeFailed.
	Err error
}

// Service is the completion orchestrator. It owns the per-user serialization
// discipline: the user's lock is held for the whole turn, so a user's own
// messages are processed in order and never race an entitlement activation.
type Service struct {
	store        store.UserStore
	provider     CompletionProvider
	locks        *userLocks
	systemPrompt string
	quotaLoc     *time.Location
	logger       *slog.Logger
}

// NewService creates the orchestrator with its injected collaborators.
func NewService(
	userStore store.UserStore,
	provider CompletionProvider,
	systemPrompt string,
	quotaLoc *time.Location,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if quotaLoc == nil {
		quotaLoc = time.UTC
	}
	return &Service{
		store:        userStore,
		provider:     provider,
		locks:        newUserLocks(),
		systemPrompt: systemPrompt,
		quotaLoc:     quotaLoc,
		logger:       logger,
	}
}

// HandleMessage runs the full turn for one inbound user message: load or
// create the record, day rollover, quota decision, prompt assembly, provider
// call, and commit.
//
// Commit discipline:
//   - The quota charge (count increment + date stamp) commits before the
//     provider call. A provider failure afterwards neither refunds nor
//     re-charges the turn.
//   - The history append (premium only) commits after a successful provider
//     call as one atomic record write.
//   - A store failure after a successful provider call still returns the
//     reply; withholding a valid answer is worse than a transient persistence
//     inconsistency, which is logged for reconciliation.
func (s *Service) HandleMessage(ctx context.Context, userID, text string, now time.Time) Reply {
	unlock := s.locks.Lock(userID)
	defer unlock()

	today := types.FormatDay(now, s.quotaLoc)

	rec, created, err := s.loadOrCreate(ctx, userID, today)
	if err != nil {
		s.logger.ErrorContext(ctx, "loading user record failed",
			"user_id", userID, "error", err)
		return Reply{Outcome: OutcomeFailed, Err: err}
	}

	action, normalized := Evaluate(rec, today)
	if action == Deny {
		// A denied turn is never charged. Normalization is persisted if the
		// rollover touched the record (it cannot for a denial today, but the
		// policy is the single owner of that reasoning, not this method).
		if normalized {
			if err := s.store.Save(ctx, rec); err != nil {
				s.logger.ErrorContext(ctx, "persisting quota normalization failed",
					"user_id", userID, "error", err)
			}
		}
		return Reply{Outcome: OutcomeLimited}
	}

	// Charge the attempt before calling the provider. Premium turns are not
	// metered; their record is still committed when the rollover touched it
	// or the user is new.
	if !rec.Premium {
		rec.MessageCount++
	}
	if !rec.Premium || created || normalized {
		if err := s.commit(ctx, rec, created); err != nil {
			s.logger.ErrorContext(ctx, "committing quota charge failed",
				"user_id", userID, "error", err)
			return Reply{Outcome: OutcomeFailed, Err: err}
		}
	}

	prompt := BuildPrompt(s.systemPrompt, rec, text)
	answer, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		s.logger.ErrorContext(ctx, "completion provider failed",
			"user_id", userID, "message_count", rec.MessageCount, "error", err)
		return Reply{Outcome: OutcomeFailed, Err: err}
	}

	if rec.Premium {
		AppendTurn(rec, text, answer)
		if err := s.store.Save(ctx, rec); err != nil {
			// Deliver the reply anyway; log for reconciliation.
			s.logger.ErrorContext(ctx, "persisting conversation window failed",
				"user_id", userID, "error", err)
		}
	}

	return Reply{Outcome: OutcomeReplied, Text: answer}
}

// loadOrCreate fetches the record for userID, lazily creating a free-tier
// record stamped with today on first contact.
func (s *Service) loadOrCreate(ctx context.Context, userID, today string) (rec *types.UserRecord, created bool, err error) {
	rec, err = s.store.Get(ctx, userID)
	if err == nil {
		return rec, false, nil
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundUser {
		rec = types.NewUserRecord(userID)
		rec.LastActiveDate = today
		return rec, true, nil
	}
	return nil, false, err
}

// commit writes the record back, inserting on first contact.
func (s *Service) commit(ctx context.Context, rec *types.UserRecord, created bool) error {
	if created {
		return s.store.Create(ctx, rec)
	}
	return s.store.Save(ctx, rec)
}
