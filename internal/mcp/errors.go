// Package mcp exposes row enrichment as Model Context Protocol tools and
// relays tool calls to an upstream MCP server.
package mcp

import "github.com/rotisserie/eris"

var (
	// ErrMissingOrchestrator is returned when the server has nothing to run enrichment with.
	ErrMissingOrchestrator = eris.New("mcp: orchestrator is required")

	// ErrMissingUpstream is returned when a relay has no upstream.
	ErrMissingUpstream = eris.New("mcp: upstream is required")

	// ErrUnknownTool is returned when a relayed tool is not in the upstream registry.
	ErrUnknownTool = eris.New("mcp: unknown remote tool")
)
