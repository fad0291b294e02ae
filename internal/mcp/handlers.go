package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/blender-mcp-server/internal/query"
)

// Handlers translate between MCP tool IO and the query service. Service
// unavailability surfaces as a tool error with a normalized message; empty
// results and not-found are successful outputs with an explanatory message.

// makeSearchHandler creates the search_docs tool handler.
func makeSearchHandler(svc *query.Service) func(
	context.Context, *mcp.CallToolRequest, SearchDocsInput,
) (*mcp.CallToolResult, SearchDocsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocsInput) (
		*mcp.CallToolResult, SearchDocsOutput, error,
	) {
		results, err := svc.Search(ctx, input.Query, input.Limit)
		if err != nil {
			return nil, SearchDocsOutput{}, normalizeServiceError(err)
		}

		out := SearchDocsOutput{Results: make([]SearchResult, 0, len(results))}
		for _, result := range results {
			out.Results = append(out.Results, SearchResult{
				Path:    result.Path,
				Kind:    result.Kind,
				Summary: result.Summary,
				Score:   result.Score,
			})
		}

		if len(out.Results) == 0 {
			out.Message = "No matching entries found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeGetFunctionHandler creates the get_function tool handler.
func makeGetFunctionHandler(svc *query.Service) func(
	context.Context, *mcp.CallToolRequest, GetFunctionInput,
) (*mcp.CallToolResult, GetFunctionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetFunctionInput) (
		*mcp.CallToolResult, GetFunctionOutput, error,
	) {
		detail, err := svc.GetFunction(ctx, input.FunctionPath)
		switch {
		case errors.Is(err, query.ErrNotFound):
			return nil, GetFunctionOutput{
				Found:   false,
				Message: "'" + input.FunctionPath + "' not found in the documentation index.",
			}, nil
		case err != nil:
			return nil, GetFunctionOutput{}, normalizeServiceError(err)
		}

		return nil, GetFunctionOutput{
			Path:      detail.Path,
			Kind:      detail.Kind,
			Signature: detail.Signature,
			Summary:   detail.Summary,
			FullText:  detail.FullText,
			Module:    detail.ModulePath,
			Found:     true,
		}, nil
	}
}

// makeListModulesHandler creates the list_modules tool handler.
func makeListModulesHandler(svc *query.Service) func(
	context.Context, *mcp.CallToolRequest, ListModulesInput,
) (*mcp.CallToolResult, ListModulesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListModulesInput) (
		*mcp.CallToolResult, ListModulesOutput, error,
	) {
		modules := svc.ListModules(input.ParentModule)

		out := ListModulesOutput{
			Modules: modules,
			Count:   len(modules),
		}
		if out.Modules == nil {
			out.Modules = []string{}
		}
		if out.Count == 0 {
			if input.ParentModule == "" {
				out.Message = "No modules indexed yet. Run the indexing CLI first."
			} else {
				out.Message = "No submodules found under '" + input.ParentModule + "'."
			}
		}
		return nil, out, nil
	}
}

// makeCacheStatsHandler creates the cache_stats tool handler.
func makeCacheStatsHandler(svc *query.Service) func(
	context.Context, *mcp.CallToolRequest, CacheStatsInput,
) (*mcp.CallToolResult, CacheStatsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CacheStatsInput) (
		*mcp.CallToolResult, CacheStatsOutput, error,
	) {
		stats := svc.CacheStats(ctx)
		return nil, CacheStatsOutput{
			HitCount:     stats.Hits,
			MissCount:    stats.Misses,
			EntryCount:   stats.Entries,
			EvictedCount: stats.Evicted,
			Enabled:      stats.Enabled,
		}, nil
	}
}

// normalizeServiceError keeps raw transport details out of tool errors.
func normalizeServiceError(err error) error {
	if errors.Is(err, query.ErrServiceUnavailable) {
		return query.ErrServiceUnavailable
	}
	return err
}
