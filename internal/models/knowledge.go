// ABOUTME: Knowledge chunks and search hits for the weighted vector index
// ABOUTME: Weighted score boosts raw search score by ln(weight + 1)
package models

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxChunkText is the longest chunk text (in runes) the index stores
	MaxChunkText = 500
	// DefaultWeight is the relevance multiplier for chunks without an explicit weight
	DefaultWeight = 1.0
)

// KnowledgeChunk is a (text, vector, weight) row in the vector index
type KnowledgeChunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	Embedding []float32 `json:"-"`
	Weight    float64   `json:"weight"`
}

// Validate checks the chunk against the index dimension.
// A weight of -1 or less leaves ln(weight+1) undefined and is rejected.
func (c KnowledgeChunk) Validate(dimension int) error {
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}
	if len(c.Embedding) != dimension {
		return fmt.Errorf("embedding dimension: expected %d, got %d", dimension, len(c.Embedding))
	}
	if c.Weight <= -1 || math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
		return fmt.Errorf("invalid weight %v: must be greater than -1", c.Weight)
	}
	return nil
}

// TruncateText shortens text to MaxChunkText runes
func TruncateText(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxChunkText {
		return text
	}
	return string(runes[:MaxChunkText])
}

// SearchHit is one nearest-neighbour result from the vector index
type SearchHit struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// WeightedScore returns Score * (1 + ln(weight + 1)) using the clamped weight
func (h SearchHit) WeightedScore() float64 {
	return h.Score * (1 + math.Log(ClampWeight(h.Weight)+1))
}

// ClampWeight maps weights where the log boost is undefined to 0
func ClampWeight(w float64) float64 {
	if w <= -1 || math.IsNaN(w) {
		return 0
	}
	return w
}
