// ABOUTME: Standalone MCP server binary for agent hosts that expect a dedicated executable
// ABOUTME: Equivalent to "ragchat mcp"; extra arguments are passed through as mcp flags
package main

import (
	"fmt"
	"os"

	"github.com/harper/ragchat/cmd/ragchat/commands"
)

var version = "dev"

func main() {
	commands.SetVersion(version, "none", "unknown")

	root := commands.NewRootCmd()
	root.SetArgs(append([]string{"mcp"}, os.Args[1:]...))
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
