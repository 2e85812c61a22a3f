package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	guidelinesURI = "codegraph://usage-guidelines"
	statsURI      = "codegraph://stats"
	schemaPrefix  = "codegraph://schemas/"
)

const (
	markdownMIME = "text/markdown"
	jsonMIME     = "application/json"
	schemaMIME   = "application/schema+json"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         guidelinesURI,
		Name:        "Usage Guidelines",
		Description: "How to use the codegraph tools and read component ids",
		MIMEType:    markdownMIME,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return resourceText(guidelinesURI, markdownMIME, s.systemPrompt), nil
	})

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         statsURI,
		Name:        "Graph Statistics",
		Description: "Counts of files, components and call edges in the stored graph",
		MIMEType:    jsonMIME,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		st, err := s.store.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("read stats: %w", err)
		}
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return nil, err
		}
		return resourceText(statsURI, jsonMIME, string(data)), nil
	})

	schemas := buildSchemaMap()
	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: schemaPrefix + "{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    schemaMIME,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		tool := strings.TrimPrefix(uri, schemaPrefix)
		schema, ok := schemas[tool]
		if !ok {
			return nil, fmt.Errorf("unknown tool schema: %q", tool)
		}
		return resourceText(uri, schemaMIME, schema), nil
	})
}

// resourceText wraps a single text document as a resource read result.
func resourceText(uri, mime, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mime, Text: text}},
	}
}

// buildSchemaMap maps each tool name to the inferred JSON schema of its
// arguments.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[IndexArgs](m, "index")
	addSchema[IndexStatusArgs](m, "index_status")
	addSchema[GetSymbolsInFileArgs](m, "get_symbols_in_file")
	addSchema[FindImpactArgs](m, "find_impact")
	addSchema[GetSymbolArgs](m, "get_symbol")
	addSchema[GetCallsArgs](m, "get_calls")
	return m
}

// addSchema skips argument types the inference cannot describe.
func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return
	}
	m[name] = string(data)
}
