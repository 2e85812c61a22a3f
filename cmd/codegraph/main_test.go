package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/graph"
	"codegraph/internal/store"
)

func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"pkg/a.go":    "package pkg\n\nfunc Run() { helper() }\n\nfunc helper() {}\n",
		"lib/util.py": "def run():\n    return helper()\n\n\ndef helper():\n    pass\n",
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	root := writeRepo(t)

	out, err := execute(t, "analyze", root, "--check", "--log-level", "error")
	require.NoError(t, err)

	var g graph.Graph
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.Len(t, g.Nodes, 4)
	assert.ElementsMatch(t, []string{"lib/util.py", "pkg/a.go"}, g.Files())
	assert.Len(t, g.Edges, 2)
	for _, e := range g.Edges {
		assert.True(t, e.IsResolved)
	}
}

func TestAnalyzeCommandOutputFile(t *testing.T) {
	root := writeRepo(t)
	target := filepath.Join(t.TempDir(), "graph.json")

	out, err := execute(t, "analyze", root, "-o", target, "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"call_relationships"`)
}

func TestAnalyzeCommandConfig(t *testing.T) {
	root := writeRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".codegraph.yaml"), []byte("languages: [python]\n"), 0o644))

	out, err := execute(t, "analyze", root, "--log-level", "error")
	require.NoError(t, err)

	var g graph.Graph
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.Equal(t, []string{"lib/util.py"}, g.Files())

	require.NoError(t, os.WriteFile(filepath.Join(root, ".codegraph.yaml"), []byte("languages: [cobol]\n"), 0o644))
	_, err = execute(t, "analyze", root, "--log-level", "error")
	assert.Error(t, err)
}

func TestIndexCommand(t *testing.T) {
	root := writeRepo(t)
	db := filepath.Join(t.TempDir(), "graph.db")

	out, err := execute(t, "index", root, "--db", db, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 4 nodes and 2 edges")
	assert.Contains(t, out, "0 pruned")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 4, stats.Nodes)
	assert.Equal(t, 2, stats.Resolved)

	run, err := st.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, root, run.Root)
}

func TestIndexCommandPrunesDeletedFiles(t *testing.T) {
	root := writeRepo(t)
	db := filepath.Join(t.TempDir(), "graph.db")

	_, err := execute(t, "index", root, "--db", db, "--log-level", "error")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "lib", "util.py")))
	out, err := execute(t, "index", root, "--db", db, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 nodes and 1 edges")
	assert.Contains(t, out, "1 pruned")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "json", 0)
	require.NoError(t, err)
	l.Info("scanner.done", "files", 2)
	assert.Contains(t, buf.String(), `"msg":"scanner.done"`)

	_, err = newLogger(&buf, "xml", 0)
	assert.Error(t, err)
}
