// ABOUTME: Speaks text aloud through the configured synthesizer and player
// ABOUTME: Useful for checking speech settings without running a model turn
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/harper/ragchat/internal/core"
	"github.com/spf13/cobra"
)

var (
	sayVoice string
)

// NewSayCmd creates the say command
func NewSayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "say [text]",
		Short: "Read text aloud",
		Long: `Read text aloud with the configured speech settings.

Text is split into sentence-sized units and synthesized one at a time.
Reasoning wrapped in <think> tags is not spoken. With no argument the
text is read from stdin.`,
		Example: `  ragchat say "Hello there"
  ragchat say --voice alloy "Testing the cloud voice"
  cat notes.txt | ragchat say`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSay,
	}

	cmd.Flags().StringVar(&sayVoice, "voice", "", "Voice for speech synthesis")

	return cmd
}

func runSay(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) > 0 {
		text = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}

	text = strings.TrimSpace(core.StripThinking(text))
	if text == "" {
		return fmt.Errorf("no text provided")
	}

	sp, err := newSpeaker(cfg, logger)
	if err != nil {
		return err
	}

	voice := sayVoice
	if voice == "" {
		voice = cfg.Speech.Voice
	}

	sp.Speak(text, voice)
	done := make(chan struct{})
	go func() {
		sp.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-cmd.Context().Done():
		sp.Stop()
		return cmd.Context().Err()
	}

	if n := sp.Failures(); n > 0 {
		return fmt.Errorf("%d unit(s) could not be spoken", n)
	}
	return nil
}
