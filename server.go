package main

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type docRetriever interface {
	Search(ctx context.Context, query string, k int, pathFilter string) ([]Result, error)
}

type indexManager interface {
	Reindex(ctx context.Context, paths []string) (int, error)
	Forget(ctx context.Context, path string) error
	ReadSpan(path string, start *int, end *int, window int) (DocumentSpan, error)
}

type chunkCounter interface {
	Count(ctx context.Context) (int, error)
}

const (
	defaultResults = 6
	defaultWindow  = 1200
)

func NewRagServer(retriever docRetriever, registry indexManager, counter chunkCounter, defaultK int) *server.MCPServer {
	if defaultK <= 0 {
		defaultK = defaultResults
	}

	srv := server.NewMCPServer("2ndBrain-RAG", "0.1.0", server.WithToolCapabilities(false))

	statsTool := mcp.NewTool("rag_stats",
		mcp.WithDescription("Report the number of indexed chunks"))
	srv.AddTool(statsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		count, err := counter.Count(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{"chunks": count})
	})

	reindexTool := mcp.NewTool("rag_reindex",
		mcp.WithDescription("Resync specific paths, or run a full incremental scan when no paths are given"),
		mcp.WithArray("paths",
			mcp.Description("Files or directories to resync"),
		))
	srv.AddTool(reindexTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var paths []string
		if raw, ok := request.GetArguments()["paths"].([]any); ok {
			for _, p := range raw {
				if s, ok := p.(string); ok {
					paths = append(paths, s)
				}
			}
		}

		count, err := registry.Reindex(ctx, paths)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{"processed": count})
	})

	searchTool := mcp.NewTool("rag_search",
		mcp.WithDescription("Search indexed documents and return ranked chunks for RAG"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of results to return"),
		),
		mcp.WithString("path_filter",
			mcp.Description("Only return chunks whose file path contains this substring"),
		))
	srv.AddTool(searchTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		args := request.GetArguments()
		k := defaultK
		if raw, ok := args["k"].(float64); ok {
			k = int(raw)
		}
		pathFilter, _ := args["path_filter"].(string)

		if verr := validateSearch(q, k); verr != nil {
			return mcp.NewToolResultError(verr.Message), nil
		}

		results, err := retriever.Search(ctx, q, k, pathFilter)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{"query": q, "results": results})
	})

	getTool := mcp.NewTool("rag_get",
		mcp.WithDescription("Fetch a span of a document's extracted text around the given offsets"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path"),
		),
		mcp.WithNumber("start",
			mcp.Description("Span start offset"),
		),
		mcp.WithNumber("end",
			mcp.Description("Span end offset"),
		),
		mcp.WithNumber("window",
			mcp.Description("How many characters of surrounding context to include"),
		))
	srv.AddTool(getTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		args := request.GetArguments()
		var start, end *int
		if raw, ok := args["start"].(float64); ok {
			v := int(raw)
			start = &v
		}
		if raw, ok := args["end"].(float64); ok {
			v := int(raw)
			end = &v
		}
		window := defaultWindow
		if raw, ok := args["window"].(float64); ok {
			window = int(raw)
		}

		span, err := registry.ReadSpan(path, start, end, window)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(span)
	})

	invalidateTool := mcp.NewTool("rag_invalidate",
		mcp.WithDescription("Remove a path from the index and recorded state unconditionally"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path"),
		))
	srv.AddTool(invalidateTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := registry.Forget(ctx, path); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{"invalidated": path})
	})

	return srv
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(string(raw)), nil
}
