// Package types defines the shared domain model for the Koaly bot: user
// records, conversation messages, and the application error taxonomy.
// It has no dependencies on other internal packages so that every layer
// (store, chat, transport, API) can import it freely.
package types

import "time"

// DailyMessageLimit is the number of counted messages a free-tier user may
// send per calendar day. Premium users bypass the limit entirely.
const DailyMessageLimit = 7

// HistoryLimit bounds the persisted conversation window to the most recent
// entries (user and assistant messages combined, i.e. 10 full exchanges).
const HistoryLimit = 20

// DayFormat is the canonical encoding of a calendar day. Records store the
// day as a string rather than a timestamp so that the rollover comparison
// is a plain equality check and never depends on the store's time handling.
const DayFormat = "2006-01-02"

// FormatDay renders t as a calendar day in the given location. The location
// is fixed per deployment (config QUOTA_TIMEZONE) so that all rollover
// decisions for all users share one clock.
func FormatDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayFormat)
}

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is a single entry in a conversation: one role plus its text.
// The JSON encoding matches the completion provider's wire format and the
// shape persisted in the store's history column.
type ChatMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// UserRecord is the durable per-user state gating every inbound message:
// entitlement, daily usage, and the bounded conversation window.
//
// Invariants maintained by the chat service and enforced in tests:
//   - MessageCount resets to zero exactly once per day transition, detected
//     lazily on the first message of the new day.
//   - len(History) <= HistoryLimit after every successful commit.
//   - Premium transitions false->true only (verified payment or operator
//     override); there is no downgrade path.
type UserRecord struct {
	ID             string        `json:"id"`
	Premium        bool          `json:"premium"`
	History        []ChatMessage `json:"history"`
	LastActiveDate string        `json:"last_active_date"`
	MessageCount   int           `json:"message_count"`
}

// Clone returns a deep copy of the record. Stores hand out clones so that
// callers can mutate a record freely before committing it back.
func (u *UserRecord) Clone() *UserRecord {
	if u == nil {
		return nil
	}
	cp := *u
	if u.History != nil {
		cp.History = make([]ChatMessage, len(u.History))
		copy(cp.History, u.History)
	}
	return &cp
}

// NewUserRecord returns a fresh free-tier record for a previously unseen id.
// The caller stamps LastActiveDate before the first quota evaluation.
func NewUserRecord(id string) *UserRecord {
	return &UserRecord{ID: id}
}

// PaymentEvent is a verified, trusted payment notification. Only the webhook
// verifier may construct one from an inbound payload; everything downstream
// (the entitlement activator) treats it as authenticated input.
type PaymentEvent struct {
	ID     string
	Type   string
	UserID string
	// Created is the provider-side event timestamp.
	Created time.Time
}
