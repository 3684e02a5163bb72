// ABOUTME: Ingestor embeds text chunks with bounded concurrency and stores them in the vector index
// ABOUTME: Embedding calls can be throttled with a token-bucket limiter
package core

import (
	"context"
	"fmt"
	"math"

	"github.com/harper/ragchat/internal/llm"
	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

// IngestOptions configures chunking and embedding fan-out
type IngestOptions struct {
	ChunkSize         int
	ChunkOverlap      int
	Concurrency       int
	RequestsPerSecond float64 // 0 means unlimited
	Logger            zerolog.Logger
}

// Ingestor writes documents into a VectorIndex
type Ingestor struct {
	embedder    llm.Embedder
	index       storage.VectorIndex
	chunkSize   int
	overlap     int
	concurrency int
	limiter     *rate.Limiter
	logger      zerolog.Logger
}

// NewIngestor creates an ingestor. Zero options fall back to 300/50 windows and 4 workers.
func NewIngestor(embedder llm.Embedder, index storage.VectorIndex, opts IngestOptions) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = DefaultChunkOverlap
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Ingestor{
		embedder:    embedder,
		index:       index,
		chunkSize:   opts.ChunkSize,
		overlap:     opts.ChunkOverlap,
		concurrency: opts.Concurrency,
		limiter:     limiter,
		logger:      opts.Logger.With().Str("component", "ingestor").Logger(),
	}
}

// IngestText chunks text and stores every chunk with source and weight
func (i *Ingestor) IngestText(ctx context.Context, text, source string, weight float64) ([]string, error) {
	pieces := ChunkText(text, i.chunkSize, i.overlap)
	if len(pieces) == 0 {
		return nil, nil
	}
	return i.IngestChunks(ctx, pieces, source, weight)
}

// IngestChunks embeds texts as-is (no further chunking) and inserts them in one batch.
// Nothing is inserted if any embedding fails.
func (i *Ingestor) IngestChunks(ctx context.Context, texts []string, source string, weight float64) ([]string, error) {
	if weight <= -1 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return nil, fmt.Errorf("%w: %v must be greater than -1", storage.ErrInvalidWeight, weight)
	}

	chunks := make([]models.KnowledgeChunk, len(texts))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(i.concurrency).WithCancelOnError()
	for n, text := range texts {
		p.Go(func(ctx context.Context) error {
			if i.limiter != nil {
				if err := i.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			vector, err := i.embedder.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", n, err)
			}
			chunks[n] = models.KnowledgeChunk{
				Text:      text,
				Source:    source,
				Embedding: vector,
				Weight:    weight,
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}

	ids, err := i.index.Insert(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	i.logger.Info().Str("source", source).Int("chunks", len(ids)).Float64("weight", weight).Msg("ingested")
	return ids, nil
}
