// ABOUTME: CLI command to remove knowledge from the index
// ABOUTME: Deletes everything, one source or specific chunk IDs
package commands

import (
	"fmt"

	"github.com/harper/ragchat/internal/storage"
	"github.com/spf13/cobra"
)

var (
	clearSource string
	clearIDs    []string
)

// NewClearCmd creates the clear command
func NewClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove knowledge from the index",
		Long: `Remove knowledge from the index.

Without flags every chunk in the collection is deleted. Conversation
history is not touched (see "ragchat history clear").`,
		Example: `  ragchat clear
  ragchat clear --source handbook.docx
  ragchat clear --id 3f0c... --id 9a12...`,
		Args: cobra.NoArgs,
		RunE: runClear,
	}

	cmd.Flags().StringVar(&clearSource, "source", "", "Only remove chunks with this source label")
	cmd.Flags().StringSliceVar(&clearIDs, "id", nil, "Only remove these chunk IDs (repeatable)")

	return cmd
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	filter := storage.Filter{Source: clearSource, IDs: clearIDs}
	if filter.IsEmpty() {
		filter.All = true
	}

	index, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer index.Close()

	n, err := index.Delete(ctx, filter)
	if err != nil {
		return fmt.Errorf("clearing knowledge: %w", err)
	}
	info(cmd.OutOrStdout(), "✓ Removed %d chunk(s)\n", n)
	return nil
}
