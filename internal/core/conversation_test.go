// ABOUTME: Tests for the bounded conversation log
// ABOUTME: Covers eviction order, system pinning and snapshot replacement
package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/harper/ragchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationLog_EvictsOldestFirst(t *testing.T) {
	log := NewConversationLog(3, false)
	for i := 0; i < 5; i++ {
		log.Append(models.UserMessage(fmt.Sprint(i)))
	}

	msgs := log.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "2", msgs[0].Content)
	assert.Equal(t, "4", msgs[2].Content)
}

func TestConversationLog_PinsSystemMessage(t *testing.T) {
	log := NewConversationLog(3, true)
	log.Append(models.SystemMessage("be kind"))
	log.Append(models.UserMessage("a"), models.AssistantMessage("b"))
	log.Append(models.UserMessage("c"), models.AssistantMessage("d"))

	msgs := log.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, models.SystemMessage("be kind"), msgs[0])
	assert.Equal(t, "c", msgs[1].Content)
	assert.Equal(t, "d", msgs[2].Content)
}

func TestConversationLog_UnpinnedSystemIsEvicted(t *testing.T) {
	log := NewConversationLog(2, false)
	log.Append(models.SystemMessage("sys"), models.UserMessage("a"), models.AssistantMessage("b"))

	msgs := log.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
}

func TestConversationLog_CapacityOneEvictsPinned(t *testing.T) {
	log := NewConversationLog(1, true)
	log.Append(models.SystemMessage("sys"), models.UserMessage("a"))

	assert.Equal(t, []models.Message{models.UserMessage("a")}, log.Messages())
}

func TestConversationLog_DefaultCapacity(t *testing.T) {
	log := NewConversationLog(0, true)
	assert.Equal(t, DefaultCapacity, log.Cap())
}

func TestConversationLog_MessagesIsACopy(t *testing.T) {
	log := NewConversationLog(5, true)
	log.Append(models.UserMessage("a"))

	msgs := log.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "a", log.Messages()[0].Content)
}

func TestConversationLog_Tail(t *testing.T) {
	log := NewConversationLog(10, true)
	log.Append(models.SystemMessage("sys"))
	log.Append(models.UserMessage("1"), models.AssistantMessage("2"), models.UserMessage("3"))

	tail := log.Tail(2)
	require.Len(t, tail, 2)
	assert.Equal(t, "2", tail[0].Content)
	assert.Equal(t, "3", tail[1].Content)

	assert.Len(t, log.Tail(10), 3)
	assert.Empty(t, log.Tail(0))
}

func TestConversationLog_Reset(t *testing.T) {
	log := NewConversationLog(10, true)
	log.Append(models.UserMessage("a"), models.AssistantMessage("b"))

	log.Reset("fresh")
	assert.Equal(t, []models.Message{models.SystemMessage("fresh")}, log.Messages())

	log.Reset("")
	assert.Equal(t, 0, log.Len())
}

func TestConversationLog_ReplaceAppliesCapacity(t *testing.T) {
	log := NewConversationLog(2, true)
	log.Replace([]models.Message{
		models.SystemMessage("sys"),
		models.UserMessage("a"),
		models.AssistantMessage("b"),
	})

	assert.Equal(t, []models.Message{models.SystemMessage("sys"), models.AssistantMessage("b")}, log.Messages())
}

func TestConversationLog_ConcurrentAppend(t *testing.T) {
	log := NewConversationLog(50, false)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				log.Append(models.UserMessage("x"))
				_ = log.Messages()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, log.Len())
}
