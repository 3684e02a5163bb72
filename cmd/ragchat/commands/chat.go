// ABOUTME: Interactive chat REPL
// ABOUTME: Streams answers live, supports /stop, /clear and /quit, and can attach session-only documents
package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/loader"
	"github.com/harper/ragchat/internal/storage"
	"github.com/spf13/cobra"
)

var (
	chatSession     string
	chatUploads     []string
	chatNoRetrieval bool
	chatSpeak       bool
	chatVoice       string
)

// NewChatCmd creates the chat command
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Start an interactive chat session.

Answers stream as they are generated. Relevant knowledge is retrieved from
the index before every turn, and the conversation is saved so it can be
resumed with the same --session.

Commands inside the chat:
  /stop    stop speaking
  /clear   forget the conversation so far
  /quit    leave (also /exit or Ctrl-D)

Documents passed with --upload are searchable for this session only and
are removed from the index when the chat ends.`,
		Example: `  ragchat chat
  ragchat chat --session work --speak
  ragchat chat --upload handbook.docx --upload notes.md`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}

	cmd.Flags().StringVarP(&chatSession, "session", "s", "", "Conversation to resume (default \"default\")")
	cmd.Flags().StringSliceVar(&chatUploads, "upload", nil, "Document to make searchable for this session only (repeatable)")
	cmd.Flags().BoolVar(&chatNoRetrieval, "no-retrieval", false, "Do not look up knowledge before answering")
	cmd.Flags().BoolVar(&chatSpeak, "speak", false, "Read answers aloud (overrides speech.enabled)")
	cmd.Flags().StringVar(&chatVoice, "voice", "", "Voice for speech synthesis")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	display := newTerminalDisplay(out, cfg.Chat.Cursor)

	sess, err := openSession(ctx, cfg, logger, sessionOptions{
		name:      chatSession,
		display:   display,
		retrieval: cfg.Retrieval.Enabled && !chatNoRetrieval,
		speak:     chatSpeak || cfg.Speech.Enabled,
		voice:     chatVoice,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if len(chatUploads) > 0 {
		source, err := uploadForSession(ctx, cmd, sess, chatUploads)
		if err != nil {
			return err
		}
		defer func() {
			// the chat context may already be cancelled by Ctrl-C
			n, err := sess.index.Delete(context.Background(), storage.Filter{Source: source})
			if err != nil {
				logger.Warn().Err(err).Str("source", source).Msg("failed to remove session uploads")
				return
			}
			logger.Debug().Int("chunks", n).Msg("removed session uploads")
		}()
	}

	info(out, "%s\n", dimStyle.Render(fmt.Sprintf("session %q, %d messages restored. /quit to leave.", sess.name, sess.orch.Log().Len())))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if !quiet {
			fmt.Fprint(out, userStyle.Render("You: "))
		}

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/stop":
			sess.orch.StopSpeech()
			continue
		case "/clear":
			sess.orch.StopSpeech()
			sess.orch.Log().Reset("")
			sess.save(ctx, logger)
			info(out, "%s\n", dimStyle.Render("conversation cleared"))
			continue
		}

		if !quiet {
			fmt.Fprint(out, assistantStyle.Render("Assistant: "))
		}
		if _, err := sess.orch.RunTurn(ctx, line); err != nil {
			if errors.Is(err, core.ErrTurnInProgress) || errors.Is(err, context.Canceled) {
				return nil
			}
			// already shown by the display; the chat goes on
			continue
		}
		sess.save(ctx, logger)
	}
}

// uploadForSession ingests files under a unique source label and returns it
func uploadForSession(ctx context.Context, cmd *cobra.Command, sess *session, paths []string) (string, error) {
	if sess.ingestor == nil {
		return "", errors.New("--upload needs the knowledge index (retrieval is disabled or the index is unavailable)")
	}
	source := "session:" + uuid.NewString()
	undo := func() {
		_, _ = sess.index.Delete(context.Background(), storage.Filter{Source: source})
	}
	for _, path := range paths {
		text, err := loader.Extract(ctx, path)
		if err != nil {
			undo()
			return "", err
		}
		ids, err := sess.ingestor.IngestText(ctx, text, source, 1.0)
		if err != nil {
			undo()
			return "", fmt.Errorf("uploading %s: %w", filepath.Base(path), err)
		}
		info(cmd.OutOrStdout(), "✓ %s: %d chunks available for this session\n", filepath.Base(path), len(ids))
	}
	return source, nil
}
