package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindGitRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := FindGitRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	plain := t.TempDir()
	got, err = FindGitRoot(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()
	got, err := ResolveRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestRowID(t *testing.T) {
	a := RowID("pkg/a.go", "pkg.a.Run")
	assert.Len(t, a, 64)
	assert.Equal(t, a, RowID("pkg/a.go", "pkg.a.Run"))
	assert.NotEqual(t, a, RowID("pkg/a.py", "pkg.a.Run"))
	assert.NotEqual(t, RowID("ab", "c"), RowID("a", "bc"))
}

func TestURIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir with space", "main.go")
	uri := PathToURI(path)
	assert.Contains(t, uri, "file:///")
	assert.Contains(t, uri, "dir%20with%20space")
	assert.Equal(t, path, URIToPath(uri))
	assert.Equal(t, "relative/x.go", URIToPath("relative/x.go"))
}
