// ABOUTME: Tests for the SQLite vector index
// ABOUTME: Verifies BLOB round-trips, L2 search, dimension checks, filtered deletes and persistence
package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, dim int) *Index {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	idx, err := NewIndex(context.Background(), db, "test_collection", dim)
	require.NoError(t, err)
	return idx
}

func kc(text, source string, weight float64, vec ...float32) models.KnowledgeChunk {
	return models.KnowledgeChunk{Text: text, Source: source, Weight: weight, Embedding: vec}
}

func TestVectorBlobRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}
	assert.Equal(t, in, blobToVector(vectorToBlob(in)))
	assert.Len(t, vectorToBlob(in), 16)
}

func TestIndex_InsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 2)

	ids, err := idx.Insert(ctx, []models.KnowledgeChunk{
		kc("near", "a.txt", 1, 1, 0),
		kc("mid", "a.txt", 2, 3, 4),
		kc("far", "b.txt", 0.5, 10, 10),
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	hits, err := idx.Search(ctx, []float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "near", hits[0].Text)
	assert.Equal(t, ids[0], hits[0].ID)
	assert.Equal(t, "a.txt", hits[0].Source)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, 1.0, hits[0].Weight)

	assert.Equal(t, "mid", hits[1].Text)
	assert.InDelta(t, 5.0, hits[1].Score, 1e-6)
	assert.Equal(t, 2.0, hits[1].Weight)
}

func TestIndex_SearchFewerThanLimit(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 1)
	_, err := idx.Insert(ctx, []models.KnowledgeChunk{kc("a", "", 1, 1), kc("b", "", 1, 2)})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{0}, 6)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestIndex_EmptyCollection(t *testing.T) {
	idx := newTestIndex(t, 3)
	hits, err := idx.Search(context.Background(), []float32{1, 2, 3}, 4)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 3)

	_, err := idx.Insert(ctx, []models.KnowledgeChunk{kc("a", "", 1, 1, 2)})
	assert.True(t, errors.Is(err, storage.ErrDimensionMismatch))

	_, err = idx.Search(ctx, []float32{1}, 1)
	assert.True(t, errors.Is(err, storage.ErrDimensionMismatch))
}

func TestIndex_RejectsInvalidWeight(t *testing.T) {
	idx := newTestIndex(t, 1)
	_, err := idx.Insert(context.Background(), []models.KnowledgeChunk{kc("a", "", -1, 1)})
	assert.True(t, errors.Is(err, storage.ErrInvalidWeight))

	count, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count, "a rejected batch stores nothing")
}

func TestIndex_TruncatesLongText(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 1)
	long := make([]rune, models.MaxChunkText+100)
	for i := range long {
		long[i] = 'x'
	}
	_, err := idx.Insert(ctx, []models.KnowledgeChunk{kc(string(long), "", 1, 1)})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1}, 1)
	require.NoError(t, err)
	assert.Len(t, []rune(hits[0].Text), models.MaxChunkText)
}

func TestIndex_Delete(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, 1)

	ids, err := idx.Insert(ctx, []models.KnowledgeChunk{
		kc("a", "upload.pdf", 1, 1),
		kc("b", "upload.pdf", 1, 2),
		kc("c", "notes.md", 1, 3),
		kc("d", "", 1, 4),
	})
	require.NoError(t, err)

	_, err = idx.Delete(ctx, storage.Filter{})
	assert.ErrorIs(t, err, storage.ErrEmptyFilter)

	n, err := idx.Delete(ctx, storage.Filter{IDs: []string{ids[3]}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = idx.Delete(ctx, storage.Filter{Source: "upload.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err = idx.Delete(ctx, storage.Filter{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndex_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	a, err := NewIndex(ctx, db, "a", 1)
	require.NoError(t, err)
	b, err := NewIndex(ctx, db, "b", 1)
	require.NoError(t, err)

	_, err = a.Insert(ctx, []models.KnowledgeChunk{kc("only in a", "", 1, 1)})
	require.NoError(t, err)

	hits, err := b.Search(ctx, []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = b.Delete(ctx, storage.Filter{All: true})
	require.NoError(t, err)
	count, _ := a.Count(ctx)
	assert.Equal(t, 1, count)
}

func TestOpenIndex_PersistsAndChecksDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenIndex(ctx, path, "kb", 2)
	require.NoError(t, err)
	_, err = idx.Insert(ctx, []models.KnowledgeChunk{kc("kept", "", 1, 1, 1)})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := OpenIndex(ctx, path, "kb", 2)
	require.NoError(t, err)
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, reopened.Close())

	_, err = OpenIndex(ctx, path, "kb", 3)
	assert.True(t, errors.Is(err, storage.ErrDimensionMismatch))
}
