// ABOUTME: SQLite-backed VectorIndex for a single knowledge collection
// ABOUTME: Stores vectors as float32 BLOBs and ranks by brute-force L2 distance
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"gonum.org/v1/gonum/floats"
)

// Index is a storage.VectorIndex over one collection
type Index struct {
	db         *DB
	collection string
	dimension  int
	ownsDB     bool
}

var _ storage.VectorIndex = (*Index)(nil)

// OpenIndex opens the database at path and the named collection in it
func OpenIndex(ctx context.Context, path, collection string, dimension int) (*Index, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	idx, err := NewIndex(ctx, db, collection, dimension)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	idx.ownsDB = true
	return idx, nil
}

// NewIndex creates the collection if absent. An existing collection with a
// different dimension is an error.
func NewIndex(ctx context.Context, db *DB, collection string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO collections (name, dimension, metric, created_at)
		VALUES (?, ?, 'L2', ?)
		ON CONFLICT(name) DO NOTHING
	`, collection, dimension, time.Now())
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", collection, err)
	}

	var existing int
	if err := db.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE name = ?", collection).Scan(&existing); err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", collection, err)
	}
	if existing != dimension {
		return nil, fmt.Errorf("collection %s: %w: stored %d, configured %d", collection, storage.ErrDimensionMismatch, existing, dimension)
	}

	return &Index{db: db, collection: collection, dimension: dimension}, nil
}

// Insert implements storage.VectorIndex
func (x *Index) Insert(ctx context.Context, chunks []models.KnowledgeChunk) ([]string, error) {
	prepared, err := storage.PrepareChunks(chunks, x.dimension)
	if err != nil {
		return nil, err
	}

	tx, err := x.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, collection, source, text, weight, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			text = excluded.text,
			weight = excluded.weight,
			vector = excluded.vector
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	ids := make([]string, len(prepared))
	for i, c := range prepared {
		if _, err := stmt.ExecContext(ctx, c.ID, x.collection, c.Source, c.Text, c.Weight, vectorToBlob(c.Embedding), now); err != nil {
			return nil, fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
		ids[i] = c.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert: %w", err)
	}
	return ids, nil
}

// Search implements storage.VectorIndex
func (x *Index) Search(ctx context.Context, vector []float32, limit int) ([]models.SearchHit, error) {
	if err := storage.CheckQuery(vector, x.dimension); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT id, source, text, weight, vector
		FROM chunks
		WHERE collection = ?
		ORDER BY created_at ASC, rowid ASC
	`, x.collection)
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", x.collection, err)
	}
	defer func() { _ = rows.Close() }()

	query := toFloat64(vector)
	var hits []models.SearchHit
	for rows.Next() {
		var (
			hit  models.SearchHit
			blob []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Source, &hit.Text, &hit.Weight, &blob); err != nil {
			return nil, err
		}
		stored := blobToVector(blob)
		if len(stored) != x.dimension {
			continue
		}
		hit.Score = floats.Distance(query, toFloat64(stored), 2)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete implements storage.VectorIndex
func (x *Index) Delete(ctx context.Context, filter storage.Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, storage.ErrEmptyFilter
	}

	clauses := []string{"collection = ?"}
	args := []any{x.collection}
	if len(filter.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")
		clauses = append(clauses, "id IN ("+placeholders+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, filter.Source)
	}

	res, err := x.db.ExecContext(ctx, "DELETE FROM chunks WHERE "+strings.Join(clauses, " AND "), args...)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", x.collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Count implements storage.VectorIndex
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks WHERE collection = ?", x.collection).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Dimension implements storage.VectorIndex
func (x *Index) Dimension() int { return x.dimension }

// Close closes the database when the index opened it
func (x *Index) Close() error {
	if x.ownsDB {
		return x.db.Close()
	}
	return nil
}

// vectorToBlob converts a float32 slice to a little-endian binary blob
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to a float32 slice
func blobToVector(blob []byte) []float32 {
	count := len(blob) / 4
	vector := make([]float32, count)
	for i := 0; i < count; i++ {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
