// ABOUTME: Removes model reasoning spans from text before it is spoken
package core

import (
	"regexp"
	"strings"
)

var thinkSpan = regexp.MustCompile(`(?s)<think>.*?</think>`)

const thinkClose = "</think>"

// StripThinking removes every <think>...</think> span. Some local templates
// open the span in the prompt, so a leading orphan "</think>" drops everything before it.
func StripThinking(text string) string {
	out := thinkSpan.ReplaceAllString(text, "")
	if i := strings.Index(out, thinkClose); i >= 0 && !strings.Contains(out[:i], "<think>") {
		out = out[i+len(thinkClose):]
	}
	return strings.TrimSpace(out)
}
