package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/scanner"
	"codegraph/internal/store"
	"codegraph/util"
)

const sample = `package pkg

// Run starts things.
func Run() {
	helper()
}

func helper() {}

func entry() { Run() }
`

func setup(t *testing.T, opts ...Option) (*Server, *mcp.ClientSession, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte(sample), 0o644))

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := New(scanner.New(scanner.WithWorkers(2)), st, root, opts...)

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return srv, cs, root
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestIndexAndQuery(t *testing.T) {
	srv, cs, root := setup(t)

	msg, isErr := call(t, cs, "index", nil)
	require.False(t, isErr, msg)
	assert.Contains(t, msg, "Indexed 3 nodes and 2 edges")

	status, err, _ := srv.GetIndexStatus()
	assert.Equal(t, IndexStatusReady, status)
	assert.NoError(t, err)

	t.Run("get_symbol", func(t *testing.T) {
		out, isErr := call(t, cs, "get_symbol", map[string]any{"symbol_name": "Run", "with_source": true})
		require.False(t, isErr, out)
		var info []symbolInfo
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		require.Len(t, info, 1)
		assert.Equal(t, "pkg.a.Run", info[0].ID)
		assert.Equal(t, "4-6", info[0].Range)
		assert.Equal(t, util.PathToURI(filepath.Join(root, "pkg", "a.go")), info[0].URI)
		assert.Equal(t, "Run starts things.", info[0].Docstring)
		assert.Contains(t, info[0].Source, "func Run() {")

		out, _ = call(t, cs, "get_symbol", map[string]any{"symbol_name": "missing"})
		assert.Equal(t, "Symbol not found.", out)
	})

	t.Run("get_symbols_in_file", func(t *testing.T) {
		for _, p := range []string{
			"pkg/a.go",
			filepath.Join(root, "pkg", "a.go"),
			util.PathToURI(filepath.Join(root, "pkg", "a.go")),
		} {
			out, isErr := call(t, cs, "get_symbols_in_file", map[string]any{"file_path": p})
			require.False(t, isErr, out)
			var nodes []struct {
				ID   string `json:"id"`
				Kind string `json:"kind"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &nodes))
			require.Len(t, nodes, 3, p)
			assert.Equal(t, "pkg.a.Run", nodes[0].ID)
			assert.Equal(t, "function", nodes[0].Kind)
		}
	})

	t.Run("find_impact", func(t *testing.T) {
		out, isErr := call(t, cs, "find_impact", map[string]any{"symbol_name": "helper"})
		require.False(t, isErr, out)
		var impacted []struct {
			ID    string `json:"id"`
			Depth int    `json:"depth"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &impacted))
		require.Len(t, impacted, 2)
		assert.Equal(t, "pkg.a.Run", impacted[0].ID)
		assert.Equal(t, 1, impacted[0].Depth)
		assert.Equal(t, "pkg.a.entry", impacted[1].ID)
		assert.Equal(t, 2, impacted[1].Depth)

		out, _ = call(t, cs, "find_impact", map[string]any{"symbol_name": "helper", "max_depth": 1})
		require.NoError(t, json.Unmarshal([]byte(out), &impacted))
		assert.Len(t, impacted, 1)
	})

	t.Run("get_calls", func(t *testing.T) {
		out, isErr := call(t, cs, "get_calls", map[string]any{"component_id": "pkg.a.Run"})
		require.False(t, isErr, out)
		var edges []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &edges))
		require.Len(t, edges, 1)
		assert.Equal(t, "pkg.a.helper", edges[0]["callee"])
		assert.Equal(t, true, edges[0]["is_resolved"])

		out, _ = call(t, cs, "get_calls", map[string]any{"component_id": "pkg.a.helper"})
		assert.Equal(t, "No calls found.", out)
	})

	t.Run("index_status", func(t *testing.T) {
		out, isErr := call(t, cs, "index_status", nil)
		require.False(t, isErr, out)
		var result map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, "ready", result["status"])
		assert.NotEmpty(t, result["run_id"])
	})

	t.Run("reindex requires force", func(t *testing.T) {
		out, isErr := call(t, cs, "index", nil)
		assert.False(t, isErr)
		assert.Contains(t, out, "force")

		out, isErr = call(t, cs, "index", map[string]any{"force": true})
		assert.False(t, isErr, out)
		assert.Contains(t, out, "Indexed 3 nodes")
	})
}

func TestQueryBeforeIndex(t *testing.T) {
	_, cs, _ := setup(t, WithWaitTimeout(50*time.Millisecond))

	out, isErr := call(t, cs, "get_symbol", map[string]any{"symbol_name": "Run"})
	assert.True(t, isErr)
	assert.Contains(t, out, "not indexed")
}

func TestIndexFailure(t *testing.T) {
	srv, cs, root := setup(t)
	require.NoError(t, os.RemoveAll(root))

	out, isErr := call(t, cs, "index", nil)
	assert.True(t, isErr)
	assert.Contains(t, out, "Index failed")

	status, err, _ := srv.GetIndexStatus()
	assert.Equal(t, IndexStatusFailed, status)
	assert.ErrorIs(t, err, scanner.ErrInvalidRoot)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorIs(t, srv.WaitForIndex(ctx), scanner.ErrInvalidRoot)
}

func TestResources(t *testing.T) {
	_, cs, _ := setup(t)
	ctx := context.Background()

	res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: guidelinesURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, guidelinesURI, res.Contents[0].URI)
	assert.Equal(t, markdownMIME, res.Contents[0].MIMEType)
	assert.Contains(t, res.Contents[0].Text, "component id")

	res, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaPrefix + "find_impact"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, schemaPrefix+"find_impact", res.Contents[0].URI)
	assert.Equal(t, schemaMIME, res.Contents[0].MIMEType)
	assert.Contains(t, res.Contents[0].Text, "symbol_name")
	assert.Contains(t, res.Contents[0].Text, "max_depth")

	_, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaPrefix + "missing"})
	assert.Error(t, err)

	res, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: statsURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, jsonMIME, res.Contents[0].MIMEType)
	var st store.Stats
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &st))
	assert.Zero(t, st.Nodes)
}

func TestSchemaMapCoversTools(t *testing.T) {
	m := buildSchemaMap()
	for _, name := range []string{"index", "index_status", "get_symbols_in_file", "find_impact", "get_symbol", "get_calls"} {
		assert.Contains(t, m, name)
	}
}
