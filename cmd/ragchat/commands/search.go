// ABOUTME: CLI command to search the knowledge base
// ABOUTME: Shows weighted re-ranked hits with raw and weighted scores
package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/harper/ragchat/internal/core"
	"github.com/spf13/cobra"
)

var (
	searchLimit int
)

// NewSearchCmd creates search command
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base the same way a chat turn does.

Twice --limit nearest chunks are fetched, re-ranked by weighted score and
the best --limit are shown.

Examples:
  ragchat search "vacation policy"
  ragchat search --limit 10 "deployment"
  ragchat search --format json "pricing"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results to return (default retrieval.top_k)")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	limit := searchLimit
	if limit == 0 {
		limit = cfg.Retrieval.TopK
	}
	if err := validatePositiveInt(limit, "limit"); err != nil {
		return err
	}

	query := strings.Join(args, " ")

	emb, err := newEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	index, err := openIndex(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer index.Close()

	results, err := core.NewWeightedRetriever(emb, index, logger).Search(ctx, query, limit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "No knowledge found for query: %s\n", query)
		}
		return nil
	}

	if jsonOutput() {
		type row struct {
			ID            string  `json:"id"`
			Text          string  `json:"text"`
			Source        string  `json:"source"`
			Score         float64 `json:"score"`
			Weight        float64 `json:"weight"`
			WeightedScore float64 `json:"weighted_score"`
		}
		rows := make([]row, len(results))
		for i, r := range results {
			rows[i] = row{r.ID, r.Text, r.Source, r.Score, r.Weight, r.WeightedScore()}
		}
		jsonData, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", jsonData)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "WEIGHTED\tSCORE\tWEIGHT\tSOURCE\tPREVIEW\n")
	fmt.Fprintf(w, "--------\t-----\t------\t------\t-------\n")
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%.3f\t%.2f\t%s\t%s\n",
			r.WeightedScore(),
			r.Score,
			r.Weight,
			truncate(r.Source, 20),
			truncate(oneLine(r.Text), 60))
	}
	w.Flush()

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\nFound %d result(s)\n", len(results))
	}
	return nil
}
