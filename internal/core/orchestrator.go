// ABOUTME: Orchestrator drives one chat turn: retrieve, assemble, stream, commit, speak
// ABOUTME: Only one turn runs at a time; a second concurrent turn is rejected with no side effects
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/harper/ragchat/internal/llm"
	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"github.com/rs/zerolog"
)

var (
	// ErrTurnInProgress is returned when input arrives while a turn is active
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrEmptyInput is returned for blank user input
	ErrEmptyInput = errors.New("input is empty")
)

// Retrieval failure policies
const (
	PolicySkip  = "skip"
	PolicyAbort = "abort"
)

// Display receives live output for a turn
type Display interface {
	// Update shows partial text (with the cursor marker appended)
	Update(text string)
	// Done shows the final text
	Done(text string)
	// Fail shows a turn failure
	Fail(err error)
}

// Speaker plays text in the background. Stop must not return until audio has halted.
type Speaker interface {
	Speak(text, voice string)
	Stop()
}

// Options controls turn behavior
type Options struct {
	UseRetrieval      bool
	UseSpeech         bool
	TopK              int
	HistoryWindow     int
	RetrievalPolicy   string // PolicySkip or PolicyAbort
	SystemPreamble    string
	Cursor            string // appended to displayed text while streaming; empty shows none
	RememberUserTurns bool
	Voice             string
}

// Deps are the collaborators a turn uses. Retriever, Speaker, Display, Index
// and Embedder are optional.
type Deps struct {
	Retriever Retriever
	Completer llm.Completer
	Speaker   Speaker
	Log       *ConversationLog
	Display   Display
	Index     storage.VectorIndex // for RememberUserTurns
	Embedder  llm.Embedder        // for RememberUserTurns
	Logger    zerolog.Logger
}

// TurnResult summarizes a committed turn
type TurnResult struct {
	Text             string   // full assistant text as stored
	Spoken           string   // text handed to the speaker, thinking spans removed
	Knowledge        []string // retrieved texts placed in the system message
	Skipped          int      // malformed frames dropped while streaming
	RetrievalSkipped bool     // retrieval failed and the turn went ahead without knowledge
}

// Orchestrator is the composition root for a chat session
type Orchestrator struct {
	deps  Deps
	opts  Options
	state atomic.Int32
	log   zerolog.Logger
}

// NewOrchestrator validates deps and fills option defaults
func NewOrchestrator(deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Completer == nil {
		return nil, errors.New("orchestrator requires a completer")
	}
	if deps.Log == nil {
		deps.Log = NewConversationLog(DefaultCapacity, true)
	}
	if deps.Display == nil {
		deps.Display = nopDisplay{}
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.RetrievalPolicy == "" {
		opts.RetrievalPolicy = PolicySkip
	}
	if opts.RetrievalPolicy != PolicySkip && opts.RetrievalPolicy != PolicyAbort {
		return nil, fmt.Errorf("unknown retrieval policy %q", opts.RetrievalPolicy)
	}
	return &Orchestrator{
		deps: deps,
		opts: opts,
		log:  deps.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// State is the current turn phase
func (o *Orchestrator) State() models.TurnState {
	return models.TurnState(o.state.Load())
}

// Log is the session's conversation log
func (o *Orchestrator) Log() *ConversationLog {
	return o.deps.Log
}

// StopSpeech halts any in-flight playback
func (o *Orchestrator) StopSpeech() {
	if o.deps.Speaker != nil {
		o.deps.Speaker.Stop()
	}
}

func (o *Orchestrator) setState(s models.TurnState) {
	o.state.Store(int32(s))
}

// RunTurn processes one user input end to end. On failure the error is shown
// on the display, the log is left untouched and the orchestrator is idle again.
func (o *Orchestrator) RunTurn(ctx context.Context, input string) (*TurnResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}
	if !o.state.CompareAndSwap(int32(models.StateIdle), int32(models.StateRetrieving)) {
		return nil, ErrTurnInProgress
	}

	// new input preempts old speech
	if o.opts.UseSpeech {
		o.StopSpeech()
	}

	result := &TurnResult{}

	if o.opts.UseRetrieval && o.deps.Retriever != nil {
		knowledge, err := o.deps.Retriever.Retrieve(ctx, input, o.opts.TopK)
		switch {
		case err == nil:
			result.Knowledge = knowledge
		case o.opts.RetrievalPolicy == PolicyAbort:
			return nil, o.fail(err)
		default:
			o.log.Warn().Err(err).Msg("retrieval failed, continuing without knowledge")
			result.RetrievalSkipped = true
		}
	}

	history := append(o.deps.Log.Messages(), models.UserMessage(input))
	messages := AssembleContext(o.opts.SystemPreamble, result.Knowledge, history, o.opts.HistoryWindow)

	o.setState(models.StateStreaming)
	text, skipped, err := o.stream(ctx, messages)
	if err != nil {
		return nil, o.fail(err)
	}
	result.Text = text
	result.Skipped = skipped

	o.setState(models.StateCommitting)
	o.deps.Log.Append(models.UserMessage(input), models.AssistantMessage(text))
	o.deps.Display.Done(text)

	result.Spoken = StripThinking(text)
	if o.opts.UseSpeech && o.deps.Speaker != nil && result.Spoken != "" {
		o.deps.Speaker.Speak(result.Spoken, o.opts.Voice)
	}

	if o.opts.RememberUserTurns {
		o.remember(ctx, input)
	}

	o.setState(models.StateIdle)
	return result, nil
}

func (o *Orchestrator) stream(ctx context.Context, messages []models.Message) (string, int, error) {
	deltas, err := o.deps.Completer.Complete(ctx, messages)
	if err != nil {
		return "", 0, err
	}
	defer deltas.Close()

	var b strings.Builder
	for {
		delta, err := deltas.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", deltas.Skipped(), err
		}
		b.WriteString(delta)
		o.deps.Display.Update(b.String() + o.opts.Cursor)
	}

	if n := deltas.Skipped(); n > 0 {
		o.log.Warn().Int("skipped", n).Msg("stream contained malformed frames")
	}
	return b.String(), deltas.Skipped(), nil
}

func (o *Orchestrator) fail(err error) error {
	o.setState(models.StateFailed)
	o.log.Error().Err(err).Msg("turn failed")
	o.deps.Display.Fail(err)
	o.setState(models.StateIdle)
	return err
}

// remember stores the user's input in the knowledge index; failures are only logged
func (o *Orchestrator) remember(ctx context.Context, input string) {
	if o.deps.Index == nil || o.deps.Embedder == nil {
		return
	}
	vector, err := o.deps.Embedder.Embed(ctx, input)
	if err != nil {
		o.log.Warn().Err(err).Msg("could not embed user turn")
		return
	}
	ids, err := o.deps.Index.Insert(ctx, []models.KnowledgeChunk{{
		Text:      input,
		Source:    "conversation",
		Embedding: vector,
		Weight:    models.DefaultWeight,
	}})
	if err != nil {
		o.log.Warn().Err(err).Msg("could not store user turn")
		return
	}
	o.log.Debug().Strs("ids", ids).Msg("remembered user turn")
}

type nopDisplay struct{}

func (nopDisplay) Update(string) {}
func (nopDisplay) Done(string)   {}
func (nopDisplay) Fail(error)    {}
