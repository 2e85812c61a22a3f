package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"codegraph/internal/graph"
	"codegraph/util"
)

// Arguments structs

type IndexArgs struct {
	Force bool `json:"force,omitempty" jsonschema:"Re-index even when a previous index is ready"`
}

type IndexStatusArgs struct{}

type GetSymbolsInFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"Path of the file, absolute, relative to the repository root, or a file:// URI"`
}

type FindImpactArgs struct {
	SymbolName string `json:"symbol_name" jsonschema:"Name or component id of the symbol to analyze for impact"`
	MaxDepth   int    `json:"max_depth,omitempty" jsonschema:"Maximum number of call hops to follow, default 8"`
}

type GetSymbolArgs struct {
	SymbolName string `json:"symbol_name" jsonschema:"Name or component id of the symbol to locate"`
	WithSource bool   `json:"with_source,omitempty" jsonschema:"Include the source code of the symbol in the response"`
}

type GetCallsArgs struct {
	ComponentID string `json:"component_id" jsonschema:"Component id of the caller"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index",
		Description: "Scans the workspace and rebuilds the call graph",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexArgs) (*mcp.CallToolResult, any, error) {
		status, _, _ := s.GetIndexStatus()
		if status == IndexStatusReady && !args.Force {
			return textResult("Index is ready. Pass force to re-index."), nil, nil
		}

		summary, err := s.Index(ctx)
		if errors.Is(err, ErrIndexInProgress) {
			return errorResult("Indexing already in progress"), nil, nil
		}
		if err != nil {
			return errorResult(fmt.Sprintf("Index failed: %v", err)), nil, nil
		}

		msg := fmt.Sprintf("Indexed %d nodes and %d edges from %d files in %.2fs",
			summary.Nodes, summary.Edges, summary.Analyzed, summary.Duration.Seconds())
		if summary.Failed > 0 {
			msg += fmt.Sprintf(" (%d files failed)", summary.Failed)
		}
		return textResult(msg), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index_status",
		Description: "Returns the current indexing status of the workspace",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexStatusArgs) (*mcp.CallToolResult, any, error) {
		status, err, duration := s.GetIndexStatus()

		result := map[string]any{
			"status": string(status),
		}
		if duration > 0 {
			result["duration_seconds"] = duration.Seconds()
		}
		if err != nil {
			result["error"] = err.Error()
		}
		if status == IndexStatusReady {
			if st, err := s.store.Stats(ctx); err == nil {
				result["stats"] = st
			}
			if run, err := s.store.LatestRun(ctx); err == nil {
				result["run_id"] = run.ID
				result["failed_files"] = run.Failures
			}
		}

		return jsonResult(result), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_symbols_in_file",
		Description: "Returns the outline of a file: its components ordered by line",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetSymbolsInFileArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}

		path := util.URIToPath(args.FilePath)
		nodes, err := s.store.GetSymbolsInFile(ctx, path)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(nodes) == 0 && !filepath.IsAbs(path) {
			nodes, err = s.store.GetSymbolsInFile(ctx, filepath.Join(s.root, path))
			if err != nil {
				return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
			}
		}

		type SimpleNode struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Kind  string `json:"kind"`
			Range string `json:"range"`
		}
		simple := make([]SimpleNode, 0, len(nodes))
		for _, n := range nodes {
			simple = append(simple, SimpleNode{
				ID:    n.ComponentID,
				Name:  n.Name,
				Kind:  string(n.ComponentType),
				Range: nodeRange(n),
			})
		}
		return jsonResult(simple), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_impact",
		Description: "Finds the transitive callers of a symbol",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FindImpactArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}

		impacts, err := s.store.FindImpact(ctx, args.SymbolName, args.MaxDepth)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(impacts) == 0 {
			return textResult("No impacted symbols found."), nil, nil
		}

		type ImpactNode struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			FilePath string `json:"file_path"`
			Kind     string `json:"kind"`
			Depth    int    `json:"depth"`
		}
		impacted := make([]ImpactNode, 0, len(impacts))
		for _, n := range impacts {
			impacted = append(impacted, ImpactNode{
				ID:       n.ComponentID,
				Name:     n.Name,
				FilePath: n.RelativePath,
				Kind:     string(n.ComponentType),
				Depth:    n.Depth,
			})
		}
		return jsonResult(impacted), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_symbol",
		Description: "Finds the location and optionally the source code of a symbol",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetSymbolArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}

		nodes, err := s.store.GetSymbolLocation(ctx, args.SymbolName)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(nodes) == 0 {
			return textResult("Symbol not found."), nil, nil
		}

		info := make([]symbolInfo, 0, len(nodes))
		for _, n := range nodes {
			info = append(info, newSymbolInfo(n, args.WithSource))
		}
		return jsonResult(info), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_calls",
		Description: "Lists the calls made by a component, in source order",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetCallsArgs) (*mcp.CallToolResult, any, error) {
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}

		edges, err := s.store.Callees(ctx, args.ComponentID)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(edges) == 0 {
			return textResult("No calls found."), nil, nil
		}
		return jsonResult(edges), nil, nil
	})
}

type symbolInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	DisplayName string   `json:"display_name"`
	URI         string   `json:"uri"`
	Path        string   `json:"relative_path"`
	Range       string   `json:"range"`
	Parameters  []string `json:"parameters,omitempty"`
	Docstring   string   `json:"docstring,omitempty"`
	Source      string   `json:"source,omitempty"`
}

func newSymbolInfo(n graph.Node, withSource bool) symbolInfo {
	si := symbolInfo{
		ID:          n.ComponentID,
		Name:        n.Name,
		Kind:        string(n.ComponentType),
		DisplayName: n.DisplayName,
		URI:         util.PathToURI(n.FilePath),
		Path:        n.RelativePath,
		Range:       nodeRange(n),
		Parameters:  n.Parameters,
		Docstring:   n.Docstring,
	}
	if withSource {
		si.Source = n.SourceCode
	}
	return si
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Encode failed: %v", err))
	}
	return textResult(string(jsonBytes))
}
