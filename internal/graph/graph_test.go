package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModulePath(t *testing.T) {
	tests := []struct {
		rel  string
		exts []string
		want string
	}{
		{"pkg/server/handler.go", []string{".go"}, "pkg.server.handler"},
		{"main.go", []string{".go"}, "main"},
		{"pkg/Main.GO", []string{".go"}, "pkg.Main"},
		{`pkg\win\file.go`, []string{".go"}, "pkg.win.file"},
		{"./lib/util.py", []string{".py", ".pyi"}, "lib.util"},
		{"web/app.tsx", []string{".ts", ".tsx"}, "web.app"},
		{"README", []string{".go"}, "README"},
		{"a/b.js", nil, "a.b.js"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, ModulePath(tt.rel, tt.exts...))
		})
	}
}

func TestMakeComponentID(t *testing.T) {
	id, err := MakeComponentID("pkg.file", "", "Run")
	require.NoError(t, err)
	assert.Equal(t, "pkg.file.Run", id)

	id, err = MakeComponentID("pkg.file", "Server", "Run")
	require.NoError(t, err)
	assert.Equal(t, "pkg.file.Server.Run", id)

	_, err = MakeComponentID("pkg.file", "Server", "")
	assert.ErrorIs(t, err, ErrEmptySymbol)

	_, err = MakeComponentID("", "", "Run")
	assert.ErrorIs(t, err, ErrEmptyModule)

	assert.Equal(t, "pkg.file.Println", GuessCalleeID("pkg.file", "Println"))
}

func TestValidate(t *testing.T) {
	good := []Node{
		{ID: "m.A", ComponentID: "m.A", StartLine: 1, EndLine: 3},
		{ID: "m.B", ComponentID: "m.B", StartLine: 5, EndLine: 5},
	}
	edges := []CallRelationship{{Caller: "m.A", Callee: "m.B", CallLine: 2, IsResolved: true}}
	assert.Empty(t, Validate(good, edges, 5))

	t.Run("out of bounds", func(t *testing.T) {
		v := Validate(good, nil, 4)
		require.Len(t, v, 1)
		assert.Equal(t, "m.B", v[0].ID)
	})

	t.Run("duplicate edge", func(t *testing.T) {
		v := Validate(good, append(edges, edges[0]), 5)
		require.Len(t, v, 1)
		assert.Contains(t, v[0].String(), "duplicate edge")
	})

	t.Run("unsorted and duplicate id", func(t *testing.T) {
		bad := []Node{
			{ID: "m.A", ComponentID: "m.A", StartLine: 4, EndLine: 4},
			{ID: "m.A", ComponentID: "m.A", StartLine: 1, EndLine: 1},
		}
		assert.Len(t, Validate(bad, nil, 10), 2)
	})
}

func TestGraphHelpers(t *testing.T) {
	var g Graph
	g.Append([]Node{
		{ComponentID: "b.Z", RelativePath: "b.go", StartLine: 3},
		{ComponentID: "b.Y", RelativePath: "b.go", StartLine: 9},
	}, nil)
	g.Append([]Node{{ComponentID: "a.X", RelativePath: "a.go", StartLine: 1}}, []CallRelationship{{Caller: "a.X", Callee: "b.Z", CallLine: 1}})

	assert.Equal(t, []string{"b.go", "a.go"}, g.Files())

	n, ok := g.NodeByID("b.Y")
	require.True(t, ok)
	assert.Equal(t, 9, n.StartLine)
	_, ok = g.NodeByID("missing")
	assert.False(t, ok)

	g.SortByLocation()
	assert.Equal(t, "a.X", g.Nodes[0].ComponentID)
	assert.Equal(t, "b.Z", g.Nodes[1].ComponentID)
	assert.Len(t, g.Edges, 1)
}

func TestFreeFunctionJSON(t *testing.T) {
	n := Node{
		ID:            "pkg.a.A",
		ComponentID:   "pkg.a.A",
		Name:          "A",
		ComponentType: ComponentFunction,
		Parameters:    []string{},
	}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"class_name", "base_classes", "parameters", "docstring"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, "", fields["class_name"])
	assert.Nil(t, fields["base_classes"])
	assert.Equal(t, []any{}, fields["parameters"])
}
