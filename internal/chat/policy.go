// Package chat implements the per-user usage/entitlement state machine and
// conversation-history windowing that gate every inbound message: whether the
// user may proceed, what context goes to the completion provider, and how the
// updated record is persisted exactly once.
package chat

import "github.com/koalychatbot/koaly-telegram-bot/internal/types"

// Action is the quota policy decision for one inbound message.
type Action int

const (
	// Allow lets the turn proceed; the caller must count it exactly once.
	Allow Action = iota
	// Deny blocks the turn with the daily-limit notice. The record is not
	// charged for a denied message.
	Deny
)

// Evaluate applies the lazy day-rollover reset and decides whether the turn
// may proceed. It mutates rec in place (rollover normalization only) and
// returns the decision plus whether rec changed.
//
// Rules, in order:
//   - A record whose LastActiveDate differs from today has its count reset
//     to zero and its date stamped. This happens exactly once per day
//     transition because the stamp makes the comparison equal afterwards.
//   - Premium users are always allowed.
//   - Free users at or above the daily limit are denied without any change.
//   - Otherwise the turn is allowed; the caller increments MessageCount as
//     part of this turn's commit. The increment counts the attempt, not the
//     completion outcome, so induced provider errors cannot stretch the quota.
func Evaluate(rec *types.UserRecord, today string) (Action, bool) {
	changed := false
	if rec.LastActiveDate != today {
		rec.LastActiveDate = today
		rec.MessageCount = 0
		changed = true
	}

	if rec.Premium {
		return Allow, changed
	}
	if rec.MessageCount >= types.DailyMessageLimit {
		return Deny, changed
	}
	return Allow, changed
}
