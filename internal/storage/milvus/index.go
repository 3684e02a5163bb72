// ABOUTME: Milvus-backed VectorIndex over the RESTful v2 API
// ABOUTME: Creates an IVF_FLAT/L2 collection on first use and loads it before searching
package milvus

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harper/ragchat/internal/models"
	"github.com/harper/ragchat/internal/storage"
	"github.com/rs/zerolog"
)

const (
	pathHas    = "/v2/vectordb/collections/has"
	pathCreate = "/v2/vectordb/collections/create"
	pathLoad   = "/v2/vectordb/collections/load"
	pathInsert = "/v2/vectordb/entities/insert"
	pathSearch = "/v2/vectordb/entities/search"
	pathDelete = "/v2/vectordb/entities/delete"
	pathQuery  = "/v2/vectordb/entities/query"

	vectorField = "embedding"
	nlist       = 128
	nprobe      = 10
)

// Options configures a Milvus index
type Options struct {
	URI        string
	Token      string
	Collection string
	Dimension  int
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Index is a storage.VectorIndex stored in one Milvus collection
type Index struct {
	c          *client
	collection string
	dimension  int
	logger     zerolog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// Open connects to Milvus, creating and loading the collection if needed
func Open(ctx context.Context, opts Options) (*Index, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("milvus URI is required")
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", opts.Dimension)
	}
	if opts.Collection == "" {
		opts.Collection = "chatbot_collection"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	x := &Index{
		c: &client{
			baseURL: strings.TrimRight(opts.URI, "/"),
			token:   opts.Token,
			http:    httpClient,
		},
		collection: opts.Collection,
		dimension:  opts.Dimension,
		logger:     opts.Logger.With().Str("component", "milvus").Str("collection", opts.Collection).Logger(),
	}

	if err := x.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return x, nil
}

type field struct {
	FieldName         string            `json:"fieldName"`
	DataType          string            `json:"dataType"`
	IsPrimary         bool              `json:"isPrimary,omitempty"`
	ElementTypeParams map[string]string `json:"elementTypeParams,omitempty"`
}

type indexParam struct {
	FieldName  string         `json:"fieldName"`
	IndexName  string         `json:"indexName"`
	MetricType string         `json:"metricType"`
	IndexType  string         `json:"indexType"`
	Params     map[string]any `json:"params"`
}

func (x *Index) ensureCollection(ctx context.Context) error {
	var has struct {
		Has bool `json:"has"`
	}
	if err := x.c.post(ctx, pathHas, map[string]any{"collectionName": x.collection}, &has); err != nil {
		return err
	}

	if !has.Has {
		x.logger.Info().Int("dimension", x.dimension).Msg("creating collection")
		create := map[string]any{
			"collectionName": x.collection,
			"schema": map[string]any{
				"autoId":             false,
				"enableDynamicField": false,
				"fields": []field{
					{FieldName: "id", DataType: "VarChar", IsPrimary: true, ElementTypeParams: map[string]string{"max_length": "64"}},
					// models.MaxChunkText runes at up to 4 bytes each
					{FieldName: "text", DataType: "VarChar", ElementTypeParams: map[string]string{"max_length": "2048"}},
					{FieldName: "source", DataType: "VarChar", ElementTypeParams: map[string]string{"max_length": "512"}},
					{FieldName: "weight", DataType: "Double"},
					{FieldName: vectorField, DataType: "FloatVector", ElementTypeParams: map[string]string{"dim": strconv.Itoa(x.dimension)}},
				},
			},
			"indexParams": []indexParam{{
				FieldName:  vectorField,
				IndexName:  vectorField + "_idx",
				MetricType: "L2",
				IndexType:  "IVF_FLAT",
				Params:     map[string]any{"nlist": nlist},
			}},
		}
		if err := x.c.post(ctx, pathCreate, create, nil); err != nil {
			return err
		}
	}

	return x.c.post(ctx, pathLoad, map[string]any{"collectionName": x.collection}, nil)
}

type row struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Weight    float64   `json:"weight"`
	Embedding []float32 `json:"embedding"`
}

// Insert implements storage.VectorIndex
func (x *Index) Insert(ctx context.Context, chunks []models.KnowledgeChunk) ([]string, error) {
	prepared, err := storage.PrepareChunks(chunks, x.dimension)
	if err != nil {
		return nil, err
	}
	if len(prepared) == 0 {
		return nil, nil
	}

	rows := make([]row, len(prepared))
	ids := make([]string, len(prepared))
	for i, c := range prepared {
		rows[i] = row{ID: c.ID, Text: c.Text, Source: c.Source, Weight: c.Weight, Embedding: c.Embedding}
		ids[i] = c.ID
	}

	var res struct {
		InsertCount int `json:"insertCount"`
	}
	if err := x.c.post(ctx, pathInsert, map[string]any{"collectionName": x.collection, "data": rows}, &res); err != nil {
		return nil, err
	}
	x.logger.Debug().Int("inserted", res.InsertCount).Msg("inserted chunks")
	return ids, nil
}

type searchHit struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Weight   float64 `json:"weight"`
}

// Search implements storage.VectorIndex
func (x *Index) Search(ctx context.Context, vector []float32, limit int) ([]models.SearchHit, error) {
	if err := storage.CheckQuery(vector, x.dimension); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	req := map[string]any{
		"collectionName": x.collection,
		"data":           [][]float32{vector},
		"annsField":      vectorField,
		"limit":          limit,
		"outputFields":   []string{"id", "text", "source", "weight"},
		"searchParams": map[string]any{
			"metricType": "L2",
			"params":     map[string]any{"nprobe": nprobe},
		},
	}

	var raw []searchHit
	if err := x.c.post(ctx, pathSearch, req, &raw); err != nil {
		return nil, err
	}

	hits := make([]models.SearchHit, len(raw))
	for i, h := range raw {
		hits[i] = models.SearchHit{ID: h.ID, Text: h.Text, Source: h.Source, Score: h.Distance, Weight: h.Weight}
	}
	return hits, nil
}

// Delete implements storage.VectorIndex. Milvus does not always report a
// count; 0 with a nil error means the request was accepted.
func (x *Index) Delete(ctx context.Context, filter storage.Filter) (int, error) {
	expr, err := FilterExpr(filter)
	if err != nil {
		return 0, err
	}

	var res struct {
		DeleteCount int `json:"deleteCount"`
	}
	if err := x.c.post(ctx, pathDelete, map[string]any{"collectionName": x.collection, "filter": expr}, &res); err != nil {
		return 0, err
	}
	return res.DeleteCount, nil
}

// Count implements storage.VectorIndex
func (x *Index) Count(ctx context.Context) (int, error) {
	var res []map[string]any
	req := map[string]any{
		"collectionName": x.collection,
		"filter":         "",
		"outputFields":   []string{"count(*)"},
	}
	if err := x.c.post(ctx, pathQuery, req, &res); err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, nil
	}
	switch n := res[0]["count(*)"].(type) {
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("milvus count: unexpected response %v", res[0])
}

// Dimension implements storage.VectorIndex
func (x *Index) Dimension() int { return x.dimension }

// Close implements storage.VectorIndex
func (x *Index) Close() error {
	x.c.http.CloseIdleConnections()
	return nil
}

// FilterExpr renders a storage.Filter as a Milvus boolean expression
func FilterExpr(f storage.Filter) (string, error) {
	if f.IsEmpty() {
		return "", storage.ErrEmptyFilter
	}

	var clauses []string
	if len(f.IDs) > 0 {
		quoted := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			quoted[i] = strconv.Quote(id)
		}
		clauses = append(clauses, "id in ["+strings.Join(quoted, ", ")+"]")
	}
	if f.Source != "" {
		clauses = append(clauses, "source == "+strconv.Quote(f.Source))
	}
	if len(clauses) == 0 {
		// All: every primary key is a non-empty string
		return `id != ""`, nil
	}
	return strings.Join(clauses, " and "), nil
}
