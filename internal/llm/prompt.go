// ABOUTME: Flattens role-tagged messages into a single prompt for generate-style endpoints
package llm

import (
	"strings"

	"github.com/harper/ragchat/internal/models"
)

// RenderPrompt writes each message on its own line: system content as-is,
// then "User: ..." and "Assistant: ..." turns in order.
func RenderPrompt(messages []models.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			b.WriteString("User: ")
		case models.RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
