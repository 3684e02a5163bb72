// ABOUTME: Tests for Message construction and role validation
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		wantErr bool
	}{
		{"system", RoleSystem, false},
		{"user", RoleUser, false},
		{"assistant", RoleAssistant, false},
		{"tool is not supported", Role("tool"), true},
		{"empty role", Role(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.role, "hello")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, msg.Role)
			assert.Equal(t, "hello", msg.Content)
		})
	}
}

func TestToOpenAI(t *testing.T) {
	msgs := []Message{SystemMessage("be nice"), UserMessage("hi"), AssistantMessage("hello")}

	out := ToOpenAI(msgs)

	require.Len(t, out, 3)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "user", out[1].Role)
	assert.Equal(t, "assistant", out[2].Role)
	assert.Equal(t, "hello", out[2].Content)
}
