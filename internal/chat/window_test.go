package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koalychatbot/koaly-telegram-bot/internal/types"
)

const testSystemPrompt = "Eres Koaly."

func TestBuildPrompt_FreeTierIsolation(t *testing.T) {
	rec := &types.UserRecord{
		ID: "1",
		// Even if stale history exists on a free record, it must never
		// reach the provider.
		History: []types.ChatMessage{
			{Role: types.RoleUser, Content: "older message"},
			{Role: types.RoleAssistant, Content: "older reply"},
		},
	}

	prompt := BuildPrompt(testSystemPrompt, rec, "hola")

	require.Len(t, prompt, 2)
	assert.Equal(t, types.ChatMessage{Role: types.RoleSystem, Content: testSystemPrompt}, prompt[0])
	assert.Equal(t, types.ChatMessage{Role: types.RoleUser, Content: "hola"}, prompt[1])
}

func TestBuildPrompt_PremiumIncludesWindow(t *testing.T) {
	rec := &types.UserRecord{
		ID:      "1",
		Premium: true,
		History: []types.ChatMessage{
			{Role: types.RoleUser, Content: "me siento triste"},
			{Role: types.RoleAssistant, Content: "cuéntame más"},
		},
	}

	prompt := BuildPrompt(testSystemPrompt, rec, "gracias")

	require.Len(t, prompt, 4)
	assert.Equal(t, types.RoleSystem, prompt[0].Role)
	assert.Equal(t, rec.History[0], prompt[1])
	assert.Equal(t, rec.History[1], prompt[2])
	assert.Equal(t, types.ChatMessage{Role: types.RoleUser, Content: "gracias"}, prompt[3])
}

func TestAppendTurn_AppendsBothMessages(t *testing.T) {
	rec := &types.UserRecord{ID: "1", Premium: true}

	AppendTurn(rec, "hola", "hola, ¿cómo estás?")

	require.Len(t, rec.History, 2)
	assert.Equal(t, types.ChatMessage{Role: types.RoleUser, Content: "hola"}, rec.History[0])
	assert.Equal(t, types.ChatMessage{Role: types.RoleAssistant, Content: "hola, ¿cómo estás?"}, rec.History[1])
}

func TestAppendTurn_WindowBoundAfter25Turns(t *testing.T) {
	rec := &types.UserRecord{ID: "1", Premium: true}

	for i := 1; i <= 25; i++ {
		AppendTurn(rec, fmt.Sprintf("pregunta %d", i), fmt.Sprintf("respuesta %d", i))
	}

	require.Len(t, rec.History, types.HistoryLimit)

	// Exactly the most recent 10 exchanges survive, oldest evicted first.
	assert.Equal(t, "pregunta 16", rec.History[0].Content)
	assert.Equal(t, types.RoleUser, rec.History[0].Role)
	assert.Equal(t, "respuesta 25", rec.History[len(rec.History)-1].Content)
	assert.Equal(t, types.RoleAssistant, rec.History[len(rec.History)-1].Role)
}

func TestAppendTurn_TruncationCopiesStorage(t *testing.T) {
	rec := &types.UserRecord{ID: "1", Premium: true}
	for i := 0; i < 11; i++ {
		AppendTurn(rec, "u", "a")
	}

	// The truncated window must not alias the old backing array; appending
	// to the new window must never overwrite entries of a slice handed out
	// before the truncation.
	before := rec.History
	AppendTurn(rec, "nuevo", "turno")
	assert.Equal(t, "u", before[len(before)-2].Content)
	assert.Equal(t, "a", before[len(before)-1].Content)
	assert.Len(t, rec.History, types.HistoryLimit)
}
