// ABOUTME: One-shot question command
// ABOUTME: Runs a single retrieval-augmented turn and saves it to the session history
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askSession     string
	askNoRetrieval bool
	askSpeak       bool
	askVoice       string
)

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Long: `Ask a single question and stream the answer.

The exchange is appended to the session history, so several ask calls with
the same --session form one conversation.`,
		Example: `  ragchat ask "What does the handbook say about leave?"
  ragchat ask --session work "And for contractors?"
  ragchat ask --format json "Summarize the release notes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().StringVarP(&askSession, "session", "s", "", "Conversation to continue (default \"default\")")
	cmd.Flags().BoolVar(&askNoRetrieval, "no-retrieval", false, "Do not look up knowledge before answering")
	cmd.Flags().BoolVar(&askSpeak, "speak", false, "Read the answer aloud and wait for it to finish")
	cmd.Flags().StringVar(&askVoice, "voice", "", "Voice for speech synthesis")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	// JSON output is printed once the turn is done
	var display *terminalDisplay
	if jsonOutput() {
		display = newTerminalDisplay(io.Discard, cfg.Chat.Cursor)
	} else {
		display = newTerminalDisplay(out, cfg.Chat.Cursor)
	}

	sess, err := openSession(ctx, cfg, logger, sessionOptions{
		name:      askSession,
		display:   display,
		retrieval: cfg.Retrieval.Enabled && !askNoRetrieval,
		speak:     askSpeak,
		voice:     askVoice,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	result, err := sess.orch.RunTurn(ctx, question)
	if err != nil {
		return err
	}
	sess.save(ctx, logger)

	if sess.speaker != nil {
		sess.speaker.Wait()
	}

	if jsonOutput() {
		data, err := json.MarshalIndent(map[string]interface{}{
			"session":           sess.name,
			"answer":            result.Text,
			"spoken":            result.Spoken,
			"knowledge":         result.Knowledge,
			"skipped_frames":    result.Skipped,
			"retrieval_skipped": result.RetrievalSkipped,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(out, "%s\n", data)
	}
	return nil
}
