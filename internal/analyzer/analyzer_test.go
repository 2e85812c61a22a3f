package analyzer

import (
	"bytes"
	"log/slog"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

func analyze(t *testing.T, rel, src string, opts ...Option) Result {
	t.Helper()
	a := New(NewFile("/repo/"+rel, "/repo", []byte(src)), opts...)
	defer a.Close()
	require.NoError(t, a.Err())

	res, err := a.Analyze()
	require.NoError(t, err)
	assert.Empty(t, graph.Validate(res.Nodes, res.Edges, LineCount([]byte(src))))
	return res
}

func ids(nodes []graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ComponentID)
	}
	return out
}

func TestNewFile(t *testing.T) {
	f := NewFile("/repo/pkg/a.go", "/repo", nil)
	assert.Equal(t, "pkg/a.go", f.RelPath)

	f = NewFile("pkg/a.go", "", nil)
	assert.Equal(t, "pkg/a.go", f.RelPath)
}

func TestLineCount(t *testing.T) {
	assert.Equal(t, 0, LineCount(nil))
	assert.Equal(t, 1, LineCount([]byte("x")))
	assert.Equal(t, 1, LineCount([]byte("x\n")))
	assert.Equal(t, 3, LineCount([]byte("a\nb\n\n")))
	assert.Equal(t, 2, LineCount([]byte("a\nb")))
}

func TestGoLocalCallResolves(t *testing.T) {
	src := "package p\n\nfunc A() { B() }\n\nfunc B() {}\n"
	res := analyze(t, "pkg/a.go", src)

	require.Len(t, res.Nodes, 2)
	a, b := res.Nodes[0], res.Nodes[1]
	assert.Equal(t, "A", a.Name)
	assert.Equal(t, "pkg.a.A", a.ComponentID)
	assert.Equal(t, a.ComponentID, a.ID)
	assert.Equal(t, graph.ComponentFunction, a.ComponentType)
	assert.Equal(t, "function", a.NodeType)
	assert.Equal(t, "func A", a.DisplayName)
	assert.Equal(t, "/repo/pkg/a.go", a.FilePath)
	assert.Equal(t, "pkg/a.go", a.RelativePath)
	assert.Equal(t, "func A() { B() }", a.SourceCode)
	assert.Equal(t, 3, a.StartLine)
	assert.Equal(t, 3, a.EndLine)
	assert.NotNil(t, a.Parameters)
	assert.Empty(t, a.Parameters)
	assert.Nil(t, a.BaseClasses)
	assert.Empty(t, a.ClassName)

	assert.Equal(t, "pkg.a.B", b.ComponentID)
	assert.Equal(t, 5, b.StartLine)

	assert.Equal(t, []graph.CallRelationship{
		{Caller: "pkg.a.A", Callee: "pkg.a.B", CallLine: 3, IsResolved: true},
	}, res.Edges)
}

func TestUppercaseExtension(t *testing.T) {
	res := analyze(t, "pkg/Main.GO", "package pkg\n\nfunc A() { B() }\n\nfunc B() {}\n")

	assert.Equal(t, []string{"pkg.Main.A", "pkg.Main.B"}, ids(res.Nodes))
	assert.Equal(t, []graph.CallRelationship{
		{Caller: "pkg.Main.A", Callee: "pkg.Main.B", CallLine: 3, IsResolved: true},
	}, res.Edges)
}

func TestGoUnresolvedSelectorCall(t *testing.T) {
	src := "package p\n\nimport \"fmt\"\n\nfunc A() { fmt.Println(\"x\") }\n"
	res := analyze(t, "main.go", src)

	require.Len(t, res.Nodes, 1)
	require.Len(t, res.Edges, 1)
	e := res.Edges[0]
	assert.Equal(t, "main.A", e.Caller)
	assert.Equal(t, "main.Println", e.Callee)
	assert.False(t, e.IsResolved)
	assert.Equal(t, 5, e.CallLine)
}

func TestCorruptedFileYieldsEmptyResult(t *testing.T) {
	a := New(NewFile("/repo/bad.go", "/repo", []byte{'f', 'u', 'n', 'c', 0xff, 0x00, 0xfe}))
	defer a.Close()
	require.NoError(t, a.Err())

	res, err := a.Analyze()
	assert.ErrorIs(t, err, ErrParseFailed)
	assert.Empty(t, res.Nodes)
	assert.Empty(t, res.Edges)

	nodes, edges := AnalyzeFile("/repo/bad.go", "/repo", []byte{0xc3, 0x28})
	assert.Empty(t, nodes)
	assert.Empty(t, edges)
}

func TestParseFailureLogsAtDebug(t *testing.T) {
	bad := []byte{'f', 'u', 'n', 'c', 0xff, 0x00}
	run := func(level slog.Level) string {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level}))
		a := New(NewFile("/repo/bad.go", "/repo", bad), WithLogger(logger))
		defer a.Close()
		_, err := a.Analyze()
		assert.ErrorIs(t, err, ErrParseFailed)
		return buf.String()
	}

	assert.Empty(t, run(slog.LevelWarn))
	assert.Contains(t, run(slog.LevelDebug), "analyzer.parse_failed")
}

func TestStrictParse(t *testing.T) {
	src := "package p\n\nfunc A( {\n\nfunc B() {}\n"

	a := New(NewFile("/repo/a.go", "/repo", []byte(src)), WithStrictParse(true))
	defer a.Close()
	res, err := a.Analyze()
	assert.ErrorIs(t, err, ErrParseFailed)
	assert.Empty(t, res.Nodes)

	lenient := New(NewFile("/repo/a.go", "/repo", []byte(src)))
	defer lenient.Close()
	_, err = lenient.Analyze()
	assert.NoError(t, err)
}

func TestUnsupportedExtension(t *testing.T) {
	a := New(NewFile("/repo/README.md", "/repo", []byte("# readme")))
	defer a.Close()
	assert.ErrorIs(t, a.Err(), ErrUnsupported)
	assert.Empty(t, a.Language())

	res, err := a.Analyze()
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, res.Nodes)
}

func TestEveryBuiltinLanguageHasGrammar(t *testing.T) {
	for _, l := range lang.Builtin {
		g, ok := GrammarFor(l.Name)
		if assert.True(t, ok, l.Name) {
			assert.Equal(t, l.Name, g.Language())
		}
	}
}

func TestGrammarFailureDegradesToNoop(t *testing.T) {
	broken := lang.NewLanguage(lang.Go, []string{".go"}, func() unsafe.Pointer { return nil })
	reg := lang.NewRegistry(lang.WithLanguages(broken))

	a := New(NewFile("/repo/a.go", "/repo", []byte("package p\nfunc A() {}\n")), WithRegistry(reg))
	defer a.Close()
	assert.ErrorIs(t, a.Err(), ErrGrammarUnavailable)
	assert.Equal(t, lang.Go, a.Language())

	res, err := a.Analyze()
	assert.Error(t, err)
	assert.Empty(t, res.Nodes)
	assert.Empty(t, res.Edges)
}

func TestGoReceivers(t *testing.T) {
	src := `package p

type S struct{}

func (s *S) Ptr() { s.Val() }

func (s S) Val() {}

type Stack[T any] struct{ items []T }

func (st *Stack[T]) Push(v T) {}
`
	res := analyze(t, "recv.go", src)
	byID := map[string]graph.Node{}
	for _, n := range res.Nodes {
		byID[n.ComponentID] = n
	}

	for _, id := range []string{"recv.S.Ptr", "recv.S.Val"} {
		n, ok := byID[id]
		require.True(t, ok, id)
		assert.Equal(t, "S", n.ClassName)
		assert.Equal(t, graph.ComponentMethod, n.ComponentType)
	}
	assert.Equal(t, "func (S) Ptr", byID["recv.S.Ptr"].DisplayName)

	push, ok := byID["recv.Stack.Push"]
	require.True(t, ok)
	assert.Equal(t, "Stack", push.ClassName)
	assert.Equal(t, []string{"v"}, push.Parameters)

	assert.Equal(t, []graph.CallRelationship{
		{Caller: "recv.S.Ptr", Callee: "recv.S.Val", CallLine: 5, IsResolved: true},
	}, res.Edges)
}

func TestGoTypesAndParameters(t *testing.T) {
	src := `package p

// Server handles requests.
// It is safe for concurrent use.
type Server struct {
	addr string
}

type (
	Reader interface{ Read() }
	ID     int
)

func Start(a, b int, name string, opts ...Option) {}

func Skip(int, string) {}
`
	res := analyze(t, "srv.go", src)
	require.Equal(t, []string{"srv.Server", "srv.Reader", "srv.Start", "srv.Skip"}, ids(res.Nodes))

	server := res.Nodes[0]
	assert.Equal(t, graph.ComponentStruct, server.ComponentType)
	assert.Equal(t, "struct Server", server.DisplayName)
	assert.True(t, server.HasDocstring)
	assert.Equal(t, "Server handles requests.\nIt is safe for concurrent use.", server.Docstring)
	assert.Equal(t, 5, server.StartLine)
	assert.Equal(t, 7, server.EndLine)
	assert.Nil(t, server.Parameters)

	reader := res.Nodes[1]
	assert.Equal(t, graph.ComponentInterface, reader.ComponentType)
	assert.Equal(t, "interface Reader", reader.DisplayName)
	assert.Equal(t, "Reader interface{ Read() }", reader.SourceCode)

	assert.Equal(t, []string{"a", "b", "name", "opts"}, res.Nodes[2].Parameters)
	assert.NotNil(t, res.Nodes[3].Parameters)
	assert.Empty(t, res.Nodes[3].Parameters)
	assert.False(t, res.Nodes[3].HasDocstring)
}

func TestGoCallAttribution(t *testing.T) {
	src := `package p

var x = f()

func f() int { return g(h(1)) }

func g(v int) int {
	fn := func() { h(v) }
	fn()
	h(v); h(v)
	return 0
}

func h(v int) int { return v }
`
	res := analyze(t, "calls.go", src)

	assert.Equal(t, []graph.CallRelationship{
		{Caller: "calls.f", Callee: "calls.g", CallLine: 5, IsResolved: true},
		{Caller: "calls.f", Callee: "calls.h", CallLine: 5, IsResolved: true},
		{Caller: "calls.g", Callee: "calls.h", CallLine: 8, IsResolved: true},
		{Caller: "calls.g", Callee: "calls.fn", CallLine: 9, IsResolved: false},
		{Caller: "calls.g", Callee: "calls.h", CallLine: 10, IsResolved: true},
	}, res.Edges)
}

func TestDuplicateDeclarationsAreSuffixed(t *testing.T) {
	src := "package p\n\nfunc init() {}\n\nfunc init() { setup() }\n\nfunc setup() {}\n"
	res := analyze(t, "boot.go", src)

	assert.Equal(t, []string{"boot.init", "boot.init#2", "boot.setup"}, ids(res.Nodes))
	assert.Equal(t, "init", res.Nodes[1].Name)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, "boot.init#2", res.Edges[0].Caller)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	src := `package p

type T struct{}

func (t *T) A() { t.B(); helper() }

func (t *T) B() {}

func helper() { fmt.Println() }
`
	first := analyze(t, "idem.go", src)
	second := analyze(t, "idem.go", src)
	assert.Equal(t, first, second)
}

func TestStrictMembers(t *testing.T) {
	src := `package p

type S struct{}

func (s *S) Run(other *T) {
	s.step()
	other.step()
	step()
}

func (s *S) step() {}
`
	loose := analyze(t, "m.go", src)
	assert.Equal(t, []graph.CallRelationship{
		{Caller: "m.S.Run", Callee: "m.S.step", CallLine: 6, IsResolved: true},
		{Caller: "m.S.Run", Callee: "m.S.step", CallLine: 7, IsResolved: true},
		{Caller: "m.S.Run", Callee: "m.S.step", CallLine: 8, IsResolved: true},
	}, loose.Edges)

	strict := analyze(t, "m.go", src, WithStrictMembers(true))
	assert.Equal(t, []graph.CallRelationship{
		{Caller: "m.S.Run", Callee: "m.S.step", CallLine: 6, IsResolved: true},
		{Caller: "m.S.Run", Callee: "m.step", CallLine: 7, IsResolved: false},
		{Caller: "m.S.Run", Callee: "m.step", CallLine: 8, IsResolved: false},
	}, strict.Edges)
}

func TestSharedParser(t *testing.T) {
	reg := lang.NewRegistry()
	goLang, err := reg.Load(lang.Go)
	require.NoError(t, err)
	require.NotNil(t, goLang)

	parser := sitter.NewParser()
	t.Cleanup(parser.Close)
	for i := 0; i < 3; i++ {
		a := New(NewFile("/repo/a.go", "/repo", []byte("package p\nfunc A() { A() }\n")),
			WithRegistry(reg), WithParser(parser))
		res, err := a.Analyze()
		require.NoError(t, err)
		assert.Len(t, res.Nodes, 1)
		assert.Len(t, res.Edges, 1)
		a.Close()
	}
}
