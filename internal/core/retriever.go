// ABOUTME: WeightedRetriever turns a query into ranked knowledge texts
// ABOUTME: Fetches 2*top_k nearest chunks, re-scores them by weight and keeps the best top_k
package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/harper/ragchat/internal/llm"
	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"github.com/rs/zerolog"
)

// RetrievalError wraps an embedding or index failure during retrieval
type RetrievalError struct {
	Op  string // "embed" or "search"
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s failed: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Retriever returns knowledge texts relevant to a query
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// WeightedRetriever holds only handles; no index data is cached
type WeightedRetriever struct {
	embedder llm.Embedder
	index    storage.VectorIndex
	logger   zerolog.Logger
}

// NewWeightedRetriever creates a retriever over index using embedder for queries
func NewWeightedRetriever(embedder llm.Embedder, index storage.VectorIndex, logger zerolog.Logger) *WeightedRetriever {
	return &WeightedRetriever{
		embedder: embedder,
		index:    index,
		logger:   logger.With().Str("component", "retriever").Logger(),
	}
}

// Retrieve returns the texts of the top_k re-ranked hits. Fewer chunks than
// top_k in the index is not an error.
func (r *WeightedRetriever) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	hits, err := r.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}

// Search is Retrieve with scores and IDs kept
func (r *WeightedRetriever) Search(ctx context.Context, query string, topK int) ([]models.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &RetrievalError{Op: "embed", Err: err}
	}

	candidates, err := r.index.Search(ctx, vector, 2*topK)
	if err != nil {
		return nil, &RetrievalError{Op: "search", Err: err}
	}

	ranked := RankHits(candidates, topK)
	r.logger.Debug().Int("candidates", len(candidates)).Int("kept", len(ranked)).Msg("retrieved knowledge")
	return ranked, nil
}

// RankHits orders hits by WeightedScore descending and keeps the first topK.
// Ties keep their index order. The input slice is not modified.
func RankHits(hits []models.SearchHit, topK int) []models.SearchHit {
	ranked := append([]models.SearchHit(nil), hits...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeightedScore() > ranked[j].WeightedScore()
	})
	if topK >= 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}
