// ABOUTME: In-memory VectorIndex with brute-force L2 search
// ABOUTME: Used for ephemeral sessions (index.backend=memory) and tests
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/harper/ragchat/internal/models"
	"gonum.org/v1/gonum/floats"
)

// MemoryIndex keeps chunks in a map guarded by a RWMutex
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]models.KnowledgeChunk
	order     []string // insertion order, for stable ties
}

// NewMemoryIndex creates an empty index of the given dimension
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		chunks:    make(map[string]models.KnowledgeChunk),
	}
}

// Insert implements VectorIndex
func (m *MemoryIndex) Insert(ctx context.Context, chunks []models.KnowledgeChunk) ([]string, error) {
	prepared, err := PrepareChunks(chunks, m.dimension)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(prepared))
	for i, c := range prepared {
		if _, exists := m.chunks[c.ID]; !exists {
			m.order = append(m.order, c.ID)
		}
		c.Embedding = append([]float32(nil), c.Embedding...)
		m.chunks[c.ID] = c
		ids[i] = c.ID
	}
	return ids, nil
}

// Search implements VectorIndex
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, limit int) ([]models.SearchHit, error) {
	if err := CheckQuery(vector, m.dimension); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	query := toFloat64(vector)

	m.mu.RLock()
	hits := make([]models.SearchHit, 0, len(m.chunks))
	for _, id := range m.order {
		c := m.chunks[id]
		hits = append(hits, models.SearchHit{
			ID:     c.ID,
			Text:   c.Text,
			Source: c.Source,
			Score:  floats.Distance(query, toFloat64(c.Embedding), 2),
			Weight: c.Weight,
		})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete implements VectorIndex
func (m *MemoryIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}

	ids := make(map[string]bool, len(filter.IDs))
	for _, id := range filter.IDs {
		ids[id] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	removed := 0
	for _, id := range m.order {
		c := m.chunks[id]
		match := (len(ids) == 0 || ids[id]) && (filter.Source == "" || c.Source == filter.Source)
		if match {
			delete(m.chunks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed, nil
}

// Count implements VectorIndex
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// Dimension implements VectorIndex
func (m *MemoryIndex) Dimension() int { return m.dimension }

// Close implements VectorIndex
func (m *MemoryIndex) Close() error { return nil }

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
