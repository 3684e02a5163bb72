// ABOUTME: VectorIndex contract shared by the SQLite, Milvus and in-memory knowledge stores
// ABOUTME: Chunk preparation (ID assignment, truncation, validation) lives here so every backend agrees
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/harper/ragchat/internal/models"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the collection dimension
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidWeight is returned for weights where ln(weight + 1) is undefined
	ErrInvalidWeight = errors.New("invalid weight")
	// ErrEmptyFilter guards against deleting a whole collection by accident
	ErrEmptyFilter = errors.New("delete filter is empty")
)

// Filter selects chunks for deletion. Conditions are ANDed; All must be set
// explicitly to clear a collection.
type Filter struct {
	IDs    []string
	Source string
	All    bool
}

// IsEmpty reports whether the filter selects nothing
func (f Filter) IsEmpty() bool {
	return len(f.IDs) == 0 && f.Source == "" && !f.All
}

// VectorIndex is a collection of (id, text, source, weight, vector) rows
// searchable by L2 distance.
type VectorIndex interface {
	// Insert stores chunks and returns their IDs in input order
	Insert(ctx context.Context, chunks []models.KnowledgeChunk) ([]string, error)
	// Search returns up to limit nearest rows, closest first. Score is the L2 distance.
	Search(ctx context.Context, vector []float32, limit int) ([]models.SearchHit, error)
	// Delete removes matching rows and returns how many were removed when the backend reports it
	Delete(ctx context.Context, filter Filter) (int, error)
	Count(ctx context.Context) (int, error)
	Dimension() int
	Close() error
}

// PrepareChunks assigns missing IDs, truncates text to models.MaxChunkText
// and validates dimension and weight. The input slice is not modified.
func PrepareChunks(chunks []models.KnowledgeChunk, dimension int) ([]models.KnowledgeChunk, error) {
	out := make([]models.KnowledgeChunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.Text = models.TruncateText(c.Text)
		if c.Text == "" {
			return nil, fmt.Errorf("chunk %d: text cannot be empty", i)
		}
		if len(c.Embedding) != dimension {
			return nil, fmt.Errorf("chunk %d: %w: expected %d, got %d", i, ErrDimensionMismatch, dimension, len(c.Embedding))
		}
		if c.Weight <= -1 || math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
			return nil, fmt.Errorf("chunk %d: %w: %v must be greater than -1", i, ErrInvalidWeight, c.Weight)
		}
		out[i] = c
	}
	return out, nil
}

// CheckQuery validates a search vector against the index dimension
func CheckQuery(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dimension, len(vector))
	}
	return nil
}
