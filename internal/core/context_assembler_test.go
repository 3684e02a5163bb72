// ABOUTME: Tests for per-turn context assembly
package core

import (
	"testing"

	"github.com/harper/ragchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleContext_KnowledgeInSystemMessage(t *testing.T) {
	history := []models.Message{models.UserMessage("what is go?")}

	msgs := AssembleContext("You are helpful.", []string{"Go is a language.", "It has goroutines."}, history, 10)

	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are helpful.\nGo is a language.\nIt has goroutines.", msgs[0].Content)
	assert.Equal(t, history[0], msgs[1])
}

func TestAssembleContext_NoKnowledgeKeepsNewline(t *testing.T) {
	msgs := AssembleContext("preamble", nil, nil, 10)

	require.Len(t, msgs, 1)
	assert.Equal(t, "preamble\n", msgs[0].Content)
}

func TestAssembleContext_WindowAndSystemFiltering(t *testing.T) {
	history := []models.Message{
		models.SystemMessage("old system"),
		models.UserMessage("u1"),
		models.AssistantMessage("a1"),
		models.UserMessage("u2"),
		models.AssistantMessage("a2"),
		models.UserMessage("u3"),
	}

	msgs := AssembleContext("p", nil, history, 3)

	require.Len(t, msgs, 4)
	assert.Equal(t, "p\n", msgs[0].Content)
	assert.Equal(t, []string{"u2", "a2", "u3"}, []string{msgs[1].Content, msgs[2].Content, msgs[3].Content})
	for _, m := range msgs[1:] {
		assert.NotEqual(t, models.RoleSystem, m.Role)
	}
}

func TestAssembleContext_ExactlyOneSystemMessage(t *testing.T) {
	history := []models.Message{models.SystemMessage("s1"), models.SystemMessage("s2"), models.UserMessage("hi")}
	msgs := AssembleContext("p", []string{"k"}, history, 10)

	systems := 0
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			systems++
		}
	}
	assert.Equal(t, 1, systems)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
}
