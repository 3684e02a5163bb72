// ABOUTME: MCP tool handler implementations for the ragchat server
// ABOUTME: Tool failures are returned as error results so the agent can read them
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/history"
	"github.com/harper/ragchat/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// KnowledgeSearcher is satisfied by core.WeightedRetriever
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.SearchHit, error)
}

// KnowledgeWriter is satisfied by core.Ingestor
type KnowledgeWriter interface {
	IngestText(ctx context.Context, text, source string, weight float64) ([]string, error)
}

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	orchestrator *core.Orchestrator
	searcher     KnowledgeSearcher
	writer       KnowledgeWriter
	store        history.Store // optional
	session      string
	topK         int
	logger       zerolog.Logger
}

// Options wires the handlers to the chat components
type Options struct {
	Orchestrator *core.Orchestrator
	Searcher     KnowledgeSearcher
	Writer       KnowledgeWriter
	Store        history.Store
	Session      string
	TopK         int
	Logger       zerolog.Logger
}

// NewHandlers creates tool handlers
func NewHandlers(opts Options) *Handlers {
	if opts.Session == "" {
		opts.Session = history.DefaultSession
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Handlers{
		orchestrator: opts.Orchestrator,
		searcher:     opts.Searcher,
		writer:       opts.Writer,
		store:        opts.Store,
		session:      opts.Session,
		topK:         opts.TopK,
		logger:       opts.Logger.With().Str("component", "mcp").Logger(),
	}
}

// Ask handles the ask tool
func (h *Handlers) Ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	result, err := h.orchestrator.RunTurn(ctx, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("turn failed: %v", err)), nil
	}

	h.persist(ctx)

	return jsonResult(map[string]interface{}{
		"answer":            result.Text,
		"spoken":            result.Spoken,
		"knowledge":         result.Knowledge,
		"skipped_frames":    result.Skipped,
		"retrieval_skipped": result.RetrievalSkipped,
	})
}

// SearchKnowledge handles the search_knowledge tool
func (h *Handlers) SearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	topK := request.GetInt("top_k", h.topK)
	if h.searcher == nil {
		return mcp.NewToolResultError("knowledge index is unavailable"), nil
	}

	hits, err := h.searcher.Search(ctx, query, topK)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		results = append(results, map[string]interface{}{
			"id":             hit.ID,
			"text":           hit.Text,
			"source":         hit.Source,
			"score":          hit.Score,
			"weight":         hit.Weight,
			"weighted_score": hit.WeightedScore(),
		})
	}
	return jsonResult(map[string]interface{}{"results": results})
}

// AddKnowledge handles the add_knowledge tool
func (h *Handlers) AddKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("text argument is required and must be a string"), nil
	}
	source := request.GetString("source", "mcp")
	weight := request.GetFloat("weight", models.DefaultWeight)
	if h.writer == nil {
		return mcp.NewToolResultError("knowledge index is unavailable"), nil
	}

	ids, err := h.writer.IngestText(ctx, text, source, weight)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add knowledge: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"ids":    ids,
		"chunks": len(ids),
	})
}

// ClearConversation handles the clear_conversation tool
func (h *Handlers) ClearConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.orchestrator.Log().Reset("")
	if h.store != nil {
		if err := h.store.Delete(ctx, h.session); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to clear stored history: %v", err)), nil
		}
	}
	return jsonResult(map[string]interface{}{"success": true})
}

// GetConversation handles the get_conversation tool
func (h *Handlers) GetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log := h.orchestrator.Log()
	return jsonResult(map[string]interface{}{
		"session":  h.session,
		"capacity": log.Cap(),
		"messages": log.Messages(),
	})
}

// Shutdown stops any speech still playing
func (h *Handlers) Shutdown() {
	h.orchestrator.StopSpeech()
}

func (h *Handlers) persist(ctx context.Context) {
	if h.store == nil {
		return
	}
	snap := history.NewSnapshot(h.session, h.orchestrator.Log().Messages())
	if err := h.store.Save(ctx, snap); err != nil {
		h.logger.Warn().Err(err).Str("session", h.session).Msg("failed to save history")
	}
}

func jsonResult(response map[string]interface{}) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
