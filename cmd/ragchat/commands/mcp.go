// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Lets LLM agents ask grounded questions and manage knowledge over stdio
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/ragchat/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var (
	mcpSession     string
	mcpNoRetrieval bool
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs ragchat as an MCP (Model Context Protocol) server over stdio. Agents
get the ask, search_knowledge, add_knowledge, clear_conversation and
get_conversation tools. Logs go to stderr; stdout carries the protocol.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an agent host)
  ragchat mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "ragchat": {
  #       "command": "ragchat",
  #       "args": ["mcp", "--session", "agent"]
  #     }
  #   }
  # }`,
	}

	cmd.Flags().StringVarP(&mcpSession, "session", "s", "", "Conversation the ask tool continues (default \"default\")")
	cmd.Flags().BoolVar(&mcpNoRetrieval, "no-retrieval", false, "Do not look up knowledge before answering")

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd.Context(), cfg, logger, sessionOptions{
		name:      mcpSession,
		retrieval: cfg.Retrieval.Enabled && !mcpNoRetrieval,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	server := mcpserver.NewMCPServer("ragchat", build.Version)

	opts := mcp.Options{
		Orchestrator: sess.orch,
		Store:        sess.store,
		Session:      sess.name,
		TopK:         cfg.Retrieval.TopK,
		Logger:       logger,
	}
	// left nil when the index is unavailable so the tools report it
	if sess.retriever != nil {
		opts.Searcher = sess.retriever
	}
	if sess.ingestor != nil {
		opts.Writer = sess.ingestor
	}
	handlers := mcp.RegisterTools(server, mcp.NewHandlers(opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("session", sess.name).Msg("MCP server starting on stdio")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		handlers.Shutdown()
		sess.save(context.Background(), logger)

	case err := <-serverErr:
		handlers.Shutdown()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
