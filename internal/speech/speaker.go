// ABOUTME: Speaker plays assistant text in the background, one utterance at a time
// ABOUTME: Starting a new utterance stops the previous one and waits until its audio has ended
package speech

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Synthesizer turns text into playable audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error)
}

// Player outputs audio. Play returns once the audio has finished or ctx is
// cancelled. Stop halts whatever is currently playing.
type Player interface {
	Play(ctx context.Context, audio io.Reader) error
	Stop() error
}

// SynthesisError is a synthesis or playback failure for one unit of text.
// It is logged and never returned to callers of Speak.
type SynthesisError struct {
	Unit string
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speaking %q: %v", e.Unit, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Speaker is a single-slot task register: at most one utterance runs at a time
type Speaker struct {
	synth  Synthesizer
	player Player
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	task   *conc.WaitGroup
	active atomic.Bool
	failed atomic.Int64
}

// NewSpeaker creates a speaker. A nil player discards audio.
func NewSpeaker(synth Synthesizer, player Player, logger zerolog.Logger) *Speaker {
	if player == nil {
		player = NopPlayer{}
	}
	return &Speaker{
		synth:  synth,
		player: player,
		logger: logger.With().Str("component", "speech").Logger(),
	}
}

// Speak stops any current utterance and starts speaking text in the background
func (s *Speaker) Speak(text, voice string) {
	units := SplitUnits(text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	if len(units) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.task = conc.NewWaitGroup()
	s.active.Store(true)
	s.task.Go(func() {
		defer s.active.Store(false)
		s.run(ctx, units, voice)
	})
}

// Stop cancels the current utterance, halts audio output and returns only
// after the background task has exited
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Speaker) stopLocked() {
	if s.task == nil {
		return
	}
	s.cancel()
	if err := s.player.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("stopping audio output")
	}
	s.join(s.task)
	s.task = nil
	s.cancel = nil
}

// Wait blocks until the current utterance finishes on its own
func (s *Speaker) Wait() {
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()
	if task != nil {
		s.join(task)
	}
}

// join waits for task; a panic that escaped it is logged, never re-raised
func (s *Speaker) join(task *conc.WaitGroup) {
	if r := task.WaitAndRecover(); r != nil {
		s.failed.Add(1)
		s.logger.Error().Str("panic", r.String()).Msg("speech task panicked")
	}
}

// Active reports whether an utterance is in progress
func (s *Speaker) Active() bool {
	return s.active.Load()
}

// Failures counts units that could not be synthesized or played
func (s *Speaker) Failures() int64 {
	return s.failed.Load()
}

func (s *Speaker) run(ctx context.Context, units []string, voice string) {
	for _, unit := range units {
		if ctx.Err() != nil {
			return
		}
		if err := s.speakUnit(ctx, unit, voice); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.failed.Add(1)
			s.logger.Warn().Err(&SynthesisError{Unit: unit, Err: err}).Msg("speech unit failed")
		}
	}
}

func (s *Speaker) speakUnit(ctx context.Context, unit, voice string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	audio, err := s.synth.Synthesize(ctx, unit, voice)
	if err != nil {
		return err
	}
	defer audio.Close()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.player.Play(ctx, audio)
}

// unitBreaks end a speakable unit; the break character stays with its unit
const unitBreaks = ".!?;\n。！？；…"

// SplitUnits cuts text into trimmed, non-empty sentence-sized units
func SplitUnits(text string) []string {
	var units []string
	var b strings.Builder
	flush := func() {
		if u := strings.TrimSpace(b.String()); u != "" {
			units = append(units, u)
		}
		b.Reset()
	}
	for _, r := range text {
		b.WriteRune(r)
		if strings.ContainsRune(unitBreaks, r) {
			flush()
		}
	}
	flush()
	return units
}
