package chat

import "github.com/koalychatbot/koaly-telegram-bot/internal/types"

// BuildPrompt assembles the ordered message sequence for one completion call:
// the system prompt, the persisted window for premium users, and the new user
// message. Free-tier turns are evaluated in isolation — the prompt never
// contains prior turn content, only the system prompt and the current message.
func BuildPrompt(systemPrompt string, rec *types.UserRecord, newMessage string) []types.ChatMessage {
	prompt := make([]types.ChatMessage, 0, len(rec.History)+2)
	prompt = append(prompt, types.ChatMessage{Role: types.RoleSystem, Content: systemPrompt})
	if rec.Premium {
		prompt = append(prompt, rec.History...)
	}
	prompt = append(prompt, types.ChatMessage{Role: types.RoleUser, Content: newMessage})
	return prompt
}

// AppendTurn records a completed exchange in the window: the user message and
// the assistant reply, oldest entries evicted first to keep the window at
// types.HistoryLimit. The system prompt is never stored; it is rebuilt on
// every prompt so a prompt change takes effect immediately for all users.
func AppendTurn(rec *types.UserRecord, userMessage, assistantReply string) {
	rec.History = append(rec.History,
		types.ChatMessage{Role: types.RoleUser, Content: userMessage},
		types.ChatMessage{Role: types.RoleAssistant, Content: assistantReply},
	)
	if excess := len(rec.History) - types.HistoryLimit; excess > 0 {
		rec.History = append(rec.History[:0:0], rec.History[excess:]...)
	}
}
