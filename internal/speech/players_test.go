// ABOUTME: Tests for the exec-based player and synthesizer
// ABOUTME: Uses common POSIX tools and skips when they are missing
package speech

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestNewExecPlayer_Empty(t *testing.T) {
	_, err := NewExecPlayer("  ")
	assert.Error(t, err)
	_, err = NewCommandSynthesizer("")
	assert.Error(t, err)
}

func TestExecPlayer_PipesAudio(t *testing.T) {
	requireTool(t, "cat")
	p, err := NewExecPlayer("cat")
	require.NoError(t, err)

	require.NoError(t, p.Play(context.Background(), strings.NewReader("pcm bytes")))
}

func TestExecPlayer_StopKillsProcess(t *testing.T) {
	requireTool(t, "sleep")
	p, err := NewExecPlayer("sleep 30")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), strings.NewReader("")) }()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.cmd != nil
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Play did not return after Stop")
	}
}

func TestExecPlayer_StopIdle(t *testing.T) {
	p, err := NewExecPlayer("cat")
	require.NoError(t, err)
	assert.NoError(t, p.Stop())
}

func TestCommandSynthesizer(t *testing.T) {
	requireTool(t, "echo")
	s, err := NewCommandSynthesizer("echo")
	require.NoError(t, err)

	audio, err := s.Synthesize(context.Background(), "hello", "")
	require.NoError(t, err)
	data, err := io.ReadAll(audio)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	audio, err = s.Synthesize(context.Background(), "hola", "es")
	require.NoError(t, err)
	data, _ = io.ReadAll(audio)
	assert.Equal(t, "-v es hola\n", string(data))
}

func TestCommandSynthesizer_Failure(t *testing.T) {
	requireTool(t, "false")
	s, err := NewCommandSynthesizer("false")
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "x", "")
	assert.Error(t, err)
}

func TestNopPlayer(t *testing.T) {
	assert.NoError(t, NopPlayer{}.Play(context.Background(), strings.NewReader("abc")))
	assert.NoError(t, NopPlayer{}.Stop())
}
