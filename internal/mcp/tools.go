// ABOUTME: MCP tool definitions and registration for the ragchat server
// ABOUTME: Exposes chat turns, knowledge search/insert and conversation reset to agents
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, handlers *Handlers) *Handlers {
	// 1. ask - run one retrieval-augmented chat turn
	server.AddTool(mcp.Tool{
		Name:        "ask",
		Description: "Ask the assistant a question. Relevant knowledge is retrieved and the exchange is added to the conversation.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The user's message",
				},
			},
			Required: []string{"question"},
		},
	}, handlers.Ask)

	// 2. search_knowledge - weighted vector search without calling the model
	server.AddTool(mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search the knowledge base. Results are re-ranked by their stored weight.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"top_k": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of results to return (default: 3)",
					"default":     3,
				},
			},
			Required: []string{"query"},
		},
	}, handlers.SearchKnowledge)

	// 3. add_knowledge - chunk, embed and store text
	server.AddTool(mcp.Tool{
		Name:        "add_knowledge",
		Description: "Add text to the knowledge base. Long text is split into overlapping chunks.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to store",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Label for where the text came from (default: mcp)",
				},
				"weight": map[string]interface{}{
					"type":        "number",
					"description": "Relevance multiplier, must be greater than -1 (default: 1.0)",
					"default":     1.0,
				},
			},
			Required: []string{"text"},
		},
	}, handlers.AddKnowledge)

	// 4. clear_conversation - forget the current conversation
	server.AddTool(mcp.Tool{
		Name:        "clear_conversation",
		Description: "Clear the conversation history. The knowledge base is not touched.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.ClearConversation)

	// 5. get_conversation - read back the conversation log
	server.AddTool(mcp.Tool{
		Name:        "get_conversation",
		Description: "Return the messages currently held in the conversation history.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.GetConversation)

	return handlers
}
