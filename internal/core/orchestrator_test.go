// ABOUTME: Tests for the chat turn state machine
// ABOUTME: Covers display streaming, commit-on-success, retrieval policies, speech and concurrency
package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	orch      *Orchestrator
	completer *fakeCompleter
	display   *recordingDisplay
	speaker   *recordingSpeaker
	log       *ConversationLog
}

func newHarness(t *testing.T, stream *scriptedDeltas, retriever Retriever, opts Options) *harness {
	t.Helper()
	h := &harness{
		completer: &fakeCompleter{stream: stream},
		display:   &recordingDisplay{},
		speaker:   &recordingSpeaker{},
		log:       NewConversationLog(20, true),
	}
	orch, err := NewOrchestrator(Deps{
		Retriever: retriever,
		Completer: h.completer,
		Speaker:   h.speaker,
		Log:       h.log,
		Display:   h.display,
		Logger:    zerolog.Nop(),
	}, opts)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func TestOrchestrator_StreamsAndCommits(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"Hel", "lo"}}, stubRetriever{knowledge: []string{"fact one"}}, Options{
		UseRetrieval:   true,
		SystemPreamble: "You are helpful.",
		Cursor:         "▌",
	})

	res, err := h.orch.RunTurn(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, []string{"fact one"}, res.Knowledge)
	assert.Equal(t, []string{"Hel▌", "Hello▌"}, h.display.updates)
	assert.Equal(t, []string{"Hello"}, h.display.done)
	assert.Empty(t, h.display.fails)

	// the cursor never reaches the log
	assert.Equal(t, []models.Message{models.UserMessage("hi"), models.AssistantMessage("Hello")}, h.log.Messages())
	assert.Equal(t, models.StateIdle, h.orch.State())
	assert.True(t, h.completer.stream.closed)
}

func TestOrchestrator_SendsKnowledgeAndCurrentInput(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"ok"}}, stubRetriever{knowledge: []string{"k1", "k2"}}, Options{
		UseRetrieval:   true,
		SystemPreamble: "pre",
	})
	h.log.Append(models.UserMessage("earlier"), models.AssistantMessage("reply"))

	_, err := h.orch.RunTurn(context.Background(), "now")
	require.NoError(t, err)

	sent := h.completer.Last()
	require.Len(t, sent, 4)
	assert.Equal(t, models.SystemMessage("pre\nk1\nk2"), sent[0])
	assert.Equal(t, models.UserMessage("earlier"), sent[1])
	assert.Equal(t, models.AssistantMessage("reply"), sent[2])
	assert.Equal(t, models.UserMessage("now"), sent[3])
}

func TestOrchestrator_RetrievalDisabled(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"ok"}}, stubRetriever{knowledge: []string{"never"}}, Options{SystemPreamble: "pre"})

	res, err := h.orch.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, res.Knowledge)
	assert.Equal(t, "pre\n", h.completer.Last()[0].Content)
}

func TestOrchestrator_StreamFailureLeavesLogUntouched(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"par"}, err: errBoom}, nil, Options{})
	h.log.Append(models.UserMessage("before"))

	_, err := h.orch.RunTurn(context.Background(), "hi")
	require.ErrorIs(t, err, errBoom)

	assert.Equal(t, []models.Message{models.UserMessage("before")}, h.log.Messages())
	require.Len(t, h.display.fails, 1)
	assert.Empty(t, h.display.done)
	assert.Equal(t, models.StateIdle, h.orch.State())
	assert.Empty(t, h.speaker.Events())
}

func TestOrchestrator_CompleteFailure(t *testing.T) {
	h := newHarness(t, nil, nil, Options{})
	h.completer.err = errBoom

	_, err := h.orch.RunTurn(context.Background(), "hi")
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, h.log.Len())
	assert.Len(t, h.display.fails, 1)
}

func TestOrchestrator_RetrievalPolicySkip(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"answer"}}, stubRetriever{err: errBoom}, Options{
		UseRetrieval:    true,
		RetrievalPolicy: PolicySkip,
		SystemPreamble:  "pre",
	})

	res, err := h.orch.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, res.RetrievalSkipped)
	assert.Equal(t, "pre\n", h.completer.Last()[0].Content)
	assert.Equal(t, 2, h.log.Len())
}

func TestOrchestrator_RetrievalPolicyAbort(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"answer"}}, stubRetriever{err: errBoom}, Options{
		UseRetrieval:    true,
		RetrievalPolicy: PolicyAbort,
	})

	_, err := h.orch.RunTurn(context.Background(), "hi")
	require.ErrorIs(t, err, errBoom)
	assert.Empty(t, h.completer.received)
	assert.Equal(t, 0, h.log.Len())
	assert.Len(t, h.display.fails, 1)
}

func TestOrchestrator_SpeechStopsThenSpeaksStrippedText(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"<think>plan</think>", "Spoken words."}}, nil, Options{
		UseSpeech: true,
		Voice:     "alloy",
	})

	res, err := h.orch.RunTurn(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "<think>plan</think>Spoken words.", res.Text)
	assert.Equal(t, "Spoken words.", res.Spoken)
	assert.Equal(t, []string{"stop", "speak:Spoken words.|alloy"}, h.speaker.Events())
	// log keeps the raw model output
	assert.Equal(t, res.Text, h.log.Messages()[1].Content)
}

func TestOrchestrator_SpeechDisabled(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"quiet"}}, nil, Options{})

	_, err := h.orch.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, h.speaker.Events())
}

func TestOrchestrator_RejectsConcurrentTurn(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, &scriptedDeltas{deltas: []string{"slow"}, wait: release}, nil, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.RunTurn(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return h.orch.State() == models.StateStreaming
	}, time.Second, 5*time.Millisecond)

	_, err := h.orch.RunTurn(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	close(release)
	require.NoError(t, <-done)

	// the rejected input left no trace
	assert.Equal(t, []models.Message{models.UserMessage("first"), models.AssistantMessage("slow")}, h.log.Messages())
	assert.Len(t, h.completer.received, 1)
}

func TestOrchestrator_EmptyInput(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{}, nil, Options{})

	_, err := h.orch.RunTurn(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, h.completer.received)
}

func TestOrchestrator_ReportsSkippedFrames(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"a"}, skipped: 2}, nil, Options{})

	res, err := h.orch.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
}

func TestOrchestrator_RemembersUserTurns(t *testing.T) {
	ctx := context.Background()
	index := storage.NewMemoryIndex(3)
	orch, err := NewOrchestrator(Deps{
		Completer: &fakeCompleter{stream: &scriptedDeltas{deltas: []string{"noted"}}},
		Index:     index,
		Embedder:  &hashEmbedder{},
		Logger:    zerolog.Nop(),
	}, Options{RememberUserTurns: true})
	require.NoError(t, err)

	_, err = orch.RunTurn(ctx, "my name is Ada")
	require.NoError(t, err)

	n, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOrchestrator_RememberFailureDoesNotFailTurn(t *testing.T) {
	orch, err := NewOrchestrator(Deps{
		Completer: &fakeCompleter{stream: &scriptedDeltas{deltas: []string{"ok"}}},
		Index:     storage.NewMemoryIndex(3),
		Embedder:  &hashEmbedder{fail: map[string]error{"hi": errors.New("embed down")}},
		Logger:    zerolog.Nop(),
	}, Options{RememberUserTurns: true})
	require.NoError(t, err)

	res, err := orch.RunTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 2, orch.Log().Len())
}

func TestOrchestrator_EmptyCursorShowsNone(t *testing.T) {
	h := newHarness(t, &scriptedDeltas{deltas: []string{"Hel", "lo"}}, stubRetriever{}, Options{Cursor: ""})

	_, err := h.orch.RunTurn(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "Hello"}, h.display.updates)
	assert.Equal(t, []string{"Hello"}, h.display.done)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(Deps{}, Options{})
	assert.Error(t, err)

	_, err = NewOrchestrator(Deps{Completer: &fakeCompleter{}}, Options{RetrievalPolicy: "retry"})
	assert.Error(t, err)

	orch, err := NewOrchestrator(Deps{Completer: &fakeCompleter{}}, Options{})
	require.NoError(t, err)
	assert.Empty(t, orch.opts.Cursor)
	assert.Equal(t, PolicySkip, orch.opts.RetrievalPolicy)
	assert.NotNil(t, orch.Log())
}
