// ABOUTME: ConversationLog is the bounded, ordered history of one chat session
// ABOUTME: Oldest entries are evicted first; a leading system message can be pinned
package core

import (
	"sync"

	"github.com/harper/ragchat/internal/models"
)

// DefaultCapacity bounds a conversation log when none is configured
const DefaultCapacity = 20

// ConversationLog never holds more than Cap() messages
type ConversationLog struct {
	mu        sync.RWMutex
	capacity  int
	pinSystem bool
	messages  []models.Message
}

// NewConversationLog creates an empty log. With pinSystem set, a system
// message at index 0 survives eviction (unless capacity is 1).
func NewConversationLog(capacity int, pinSystem bool) *ConversationLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ConversationLog{capacity: capacity, pinSystem: pinSystem}
}

// Append adds messages in order, evicting the oldest as needed
func (l *ConversationLog) Append(msgs ...models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msgs...)
	l.evict()
}

func (l *ConversationLog) evict() {
	for len(l.messages) > l.capacity {
		drop := 0
		if l.pinSystem && l.capacity > 1 && l.messages[0].Role == models.RoleSystem {
			drop = 1
		}
		l.messages = append(l.messages[:drop], l.messages[drop+1:]...)
	}
}

// Messages returns a copy of the log in order
func (l *ConversationLog) Messages() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Tail returns the last n non-system messages in order
func (l *ConversationLog) Tail(n int) []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return tailNonSystem(l.messages, n)
}

// Len is the current number of messages
func (l *ConversationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Cap is the maximum number of messages
func (l *ConversationLog) Cap() int {
	return l.capacity
}

// Reset clears the log, leaving only a system message when one is given
func (l *ConversationLog) Reset(systemPrompt string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
	if systemPrompt != "" {
		l.messages = append(l.messages, models.SystemMessage(systemPrompt))
	}
}

// Replace swaps in a persisted snapshot, applying the same eviction rules
func (l *ConversationLog) Replace(msgs []models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append([]models.Message(nil), msgs...)
	l.evict()
}

func tailNonSystem(msgs []models.Message, n int) []models.Message {
	if n <= 0 {
		return nil
	}
	var picked []models.Message
	for i := len(msgs) - 1; i >= 0 && len(picked) < n; i-- {
		if msgs[i].Role == models.RoleSystem {
			continue
		}
		picked = append(picked, msgs[i])
	}
	// reverse back into chronological order
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}
