// ABOUTME: CLI command to add a piece of knowledge directly
// ABOUTME: Text comes from an argument, a file or stdin and is stored with an explicit weight
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harper/ragchat/internal/models"
	"github.com/spf13/cobra"
)

var (
	addFile    string
	addWeight  float64
	addSource  string
	addNoChunk bool
)

// NewAddCmd creates add command
func NewAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Add knowledge with a weight",
		Long: `Add a piece of knowledge from text, a file or stdin.

The weight multiplies the chunk's retrieval score by 1 + ln(weight + 1),
so heavier chunks are preferred when several are similarly close to the
question. Weights must be greater than -1.

Examples:
  ragchat add "The office is closed on public holidays"
  ragchat add --weight 5 "Always answer in English"
  echo "..." | ragchat add --source clipboard`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAdd,
	}

	cmd.Flags().StringVar(&addFile, "file", "", "Read text from file")
	cmd.Flags().Float64Var(&addWeight, "weight", models.DefaultWeight, "Relevance weight (must be > -1)")
	cmd.Flags().StringVar(&addSource, "source", "manual", "Source label")
	cmd.Flags().BoolVar(&addNoChunk, "no-chunk", false, "Store the text as one chunk (truncated to 500 characters)")

	return cmd
}

func runAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var text string
	if addFile != "" {
		data, err := os.ReadFile(addFile)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		text = string(data)
	} else if len(args) > 0 {
		text = args[0]
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(data)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("no text provided")
	}

	emb, err := newEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	index, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer index.Close()
	ing := newIngestor(cfg, emb, index, logger)

	var ids []string
	if addNoChunk {
		ids, err = ing.IngestChunks(ctx, []string{text}, addSource, addWeight)
	} else {
		ids, err = ing.IngestText(ctx, text, addSource, addWeight)
	}
	if err != nil {
		return fmt.Errorf("storing knowledge: %w", err)
	}

	if jsonOutput() {
		data, err := json.MarshalIndent(map[string]interface{}{"ids": ids, "weight": addWeight, "source": addSource}, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
		return nil
	}
	info(cmd.OutOrStdout(), "✓ Added %d chunk(s) with weight %.2f\n", len(ids), addWeight)
	return nil
}
