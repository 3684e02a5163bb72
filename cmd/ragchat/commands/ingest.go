// ABOUTME: Document ingestion command
// ABOUTME: Extracts, chunks, embeds and stores files, and can keep watching a folder for new ones
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/loader"
	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"github.com/spf13/cobra"
)

var (
	ingestWeight  float64
	ingestSource  string
	ingestWatch   string
	ingestReplace bool
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Add documents to the knowledge base",
		Long: `Add documents to the knowledge base.

Supported types: .txt, .md, .docx and .pdf (needs pdftotext). Text is split
into overlapping windows (ingest.chunk_size / ingest.chunk_overlap), each
window is embedded and stored with the given weight. Chunks are labelled
with the file name unless --source is set.

With --watch, new or changed files in the folder are ingested as they appear
until interrupted.`,
		Example: `  ragchat ingest handbook.docx faq.md
  ragchat ingest --weight 2 policies.pdf
  ragchat ingest --watch ~/notes`,
		RunE: runIngest,
	}

	cmd.Flags().Float64Var(&ingestWeight, "weight", models.DefaultWeight, "Relevance weight for the chunks (must be > -1)")
	cmd.Flags().StringVar(&ingestSource, "source", "", "Source label (default: file name)")
	cmd.Flags().StringVar(&ingestWatch, "watch", "", "Folder to watch for new documents")
	cmd.Flags().BoolVar(&ingestReplace, "replace", true, "Remove earlier chunks with the same source first")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && ingestWatch == "" {
		return fmt.Errorf("no files given (pass files or --watch <dir>)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	out := cmd.OutOrStdout()
	for _, path := range args {
		if err := ingestFile(ctx, out, ing, index, path); err != nil {
			return err
		}
	}

	if ingestWatch == "" {
		return nil
	}
	return watchFolder(ctx, out, ing, index, ingestWatch)
}

func sourceFor(path string) string {
	if ingestSource != "" {
		return ingestSource
	}
	return filepath.Base(path)
}

func ingestFile(ctx context.Context, out io.Writer, ing *core.Ingestor, index storage.VectorIndex, path string) error {
	text, err := loader.Extract(ctx, path)
	if err != nil {
		return err
	}

	source := sourceFor(path)
	if ingestReplace && ingestSource == "" {
		if _, err := index.Delete(ctx, storage.Filter{Source: source}); err != nil {
			return fmt.Errorf("removing old chunks for %s: %w", source, err)
		}
	}

	ids, err := ing.IngestText(ctx, text, source, ingestWeight)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}
	info(out, "✓ %s: %d chunks (weight %.2f)\n", source, len(ids), ingestWeight)
	return nil
}

func watchFolder(ctx context.Context, out io.Writer, ing *core.Ingestor, index storage.VectorIndex, dir string) error {
	w, err := loader.NewWatcher(logger)
	if err != nil {
		return err
	}
	defer w.Close()

	events, err := w.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	info(out, "Watching %s (Ctrl-C to stop)\n", dir)

	for ev := range events {
		switch ev.Op {
		case loader.FileCreated, loader.FileModified:
			if err := ingestFile(ctx, out, ing, index, ev.Path); err != nil {
				logger.Warn().Err(err).Str("path", ev.Path).Msg("ingest failed")
			}
		case loader.FileRemoved:
			if ingestSource != "" {
				// chunks from several files share the label
				continue
			}
			n, err := index.Delete(ctx, storage.Filter{Source: sourceFor(ev.Path)})
			if err != nil {
				logger.Warn().Err(err).Str("path", ev.Path).Msg("failed to remove chunks")
				continue
			}
			info(out, "✗ %s: removed %d chunks\n", filepath.Base(ev.Path), n)
		}
	}
	return nil
}
