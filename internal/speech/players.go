// ABOUTME: Audio players and an offline command-line synthesizer
// ABOUTME: ExecPlayer pipes audio into an external player process that Stop can kill
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// NopPlayer drains audio without playing it
type NopPlayer struct{}

// Play implements Player
func (NopPlayer) Play(ctx context.Context, audio io.Reader) error {
	if _, err := io.Copy(io.Discard, audio); err != nil {
		return err
	}
	return ctx.Err()
}

// Stop implements Player
func (NopPlayer) Stop() error { return nil }

// ExecPlayer runs Command with the audio on its stdin
type ExecPlayer struct {
	Command []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewExecPlayer parses a command line such as "ffplay -nodisp -autoexit -"
func NewExecPlayer(commandLine string) (*ExecPlayer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("player command is empty")
	}
	return &ExecPlayer{Command: fields}, nil
}

// Play implements Player
func (p *ExecPlayer) Play(ctx context.Context, audio io.Reader) error {
	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	cmd.Stdin = audio
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.mu.Lock()
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("starting %s: %w", p.Command[0], err)
	}
	p.cmd = cmd
	p.mu.Unlock()

	err := cmd.Wait()

	p.mu.Lock()
	p.cmd = nil
	p.mu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %s", p.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Stop kills the running player process, if any
func (p *ExecPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// CommandSynthesizer runs an offline engine that writes audio to stdout,
// e.g. "espeak --stdout". The text is passed as the last argument.
type CommandSynthesizer struct {
	Command   []string
	VoiceFlag string // prepended to the voice name when one is given, "-v" by default
}

// NewCommandSynthesizer parses a command line such as "espeak --stdout"
func NewCommandSynthesizer(commandLine string) (*CommandSynthesizer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("synthesizer command is empty")
	}
	return &CommandSynthesizer{Command: fields, VoiceFlag: "-v"}, nil
}

// Synthesize implements Synthesizer
func (s *CommandSynthesizer) Synthesize(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	args := append([]string(nil), s.Command[1:]...)
	if voice != "" && s.VoiceFlag != "" {
		args = append(args, s.VoiceFlag, voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, s.Command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", s.Command[0], err, strings.TrimSpace(stderr.String()))
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}
