// ABOUTME: Builds the message list sent to the model for one turn
// ABOUTME: One system message (preamble plus retrieved knowledge) followed by a window of recent history
package core

import (
	"strings"

	"github.com/harper/ragchat/internal/models"
)

// AssembleContext returns a system message whose content is preamble, a
// newline, and the knowledge texts joined by newlines, followed by the last
// window non-system messages of history. System messages in history are ignored.
func AssembleContext(preamble string, knowledge []string, history []models.Message, window int) []models.Message {
	system := models.SystemMessage(preamble + "\n" + strings.Join(knowledge, "\n"))
	tail := tailNonSystem(history, window)

	out := make([]models.Message, 0, len(tail)+1)
	out = append(out, system)
	return append(out, tail...)
}
