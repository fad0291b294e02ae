package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/blender-mcp-server/internal/query"
)

// Server wraps the MCP server with its query service.
type Server struct {
	server  *mcp.Server
	service *query.Service
}

// NewServer creates a configured MCP server with the four documentation
// tools registered.
func NewServer(svc *query.Service) *Server {
	impl := &mcp.Implementation{
		Name:    "blender-docs-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_docs",
		Description: "Search the Blender Python API documentation using semantic search. Returns matching entries with paths, kinds and similarity scores.",
	}, makeSearchHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_function",
		Description: "Get detailed information about a specific Blender API function, class or property by its full dotted path (e.g. bpy.ops.mesh.subdivide).",
	}, makeGetFunctionHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_modules",
		Description: "List Blender Python API modules. Pass parent_module to list its immediate submodules, or omit it for top-level modules.",
	}, makeListModulesHandler(svc))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cache_stats",
		Description: "Report local documentation cache statistics: hits, misses, entry count and evictions.",
	}, makeCacheStatsHandler(svc))

	return &Server{
		server:  server,
		service: svc,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns a Streamable HTTP handler for remote clients, mounted
// at /mcp by the entrypoint. Every request is served by this process's single
// server instance: the documentation tools are read-only, so sessions share
// all state anyway.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
