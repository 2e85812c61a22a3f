package analyzer

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

// Scope is the declaration context a syntax node is visited in.
type Scope struct {
	// Owner is the innermost enclosing container (class, table) name. It is
	// reset when a function body is entered.
	Owner string
}

// Declaration is what a Grammar reports for a declaration node. A
// declaration with an empty Name is malformed and skipped by the walker.
type Declaration struct {
	// Node is the syntax node whose span and text become the component's
	// source range.
	Node        *sitter.Node
	Name        string
	Kind        graph.ComponentType
	Owner       string
	Receiver    string
	Parameters  []string
	BaseClasses []string
	Docstring   string
	DisplayName string

	// Callable declarations become the caller of the calls in their body.
	Callable bool
	// Container declarations open an owner scope for their children.
	Container bool
}

// Call is a call site as seen by a Grammar.
type Call struct {
	Name     string
	Receiver string
	Member   bool
}

// Grammar supplies the language specific vocabulary to the shared two pass
// walker.
type Grammar interface {
	Language() string
	Declare(n *sitter.Node, scope Scope, src []byte) (Declaration, bool)
	Callee(n *sitter.Node, src []byte) (Call, bool)
}

var grammars = map[string]Grammar{
	lang.Go:         goGrammar{},
	lang.Python:     pythonGrammar{},
	lang.JavaScript: ecmaGrammar{name: lang.JavaScript},
	lang.TypeScript: ecmaGrammar{name: lang.TypeScript, typed: true},
	lang.TSX:        ecmaGrammar{name: lang.TSX, typed: true},
	lang.Lua:        luaGrammar{},
	lang.Zig:        zigGrammar{},
}

// GrammarFor returns the grammar registered for a language name.
func GrammarFor(language string) (Grammar, bool) {
	g, ok := grammars[language]
	return g, ok
}

func text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(src)
}

func childByKind(n *sitter.Node, kinds ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		for _, k := range kinds {
			if child.Kind() == k {
				return child
			}
		}
	}
	return nil
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if child := n.NamedChild(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}

func startLine(n *sitter.Node) int {
	return int(n.StartPosition().Row) + 1
}

// endLine is the 1-based last line of n. A span that stops at column 0 of a
// later row ends on the previous line.
func endLine(n *sitter.Node) int {
	start, end := n.StartPosition(), n.EndPosition()
	if end.Column == 0 && end.Row > start.Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}

// leadingComments collects the comment siblings directly above n, stopping
// at the first blank line or non-comment node.
func leadingComments(n *sitter.Node, src []byte, accept func(string) bool) []string {
	var lines []string
	next := n
	for prev := n.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		if prev.Kind() != "comment" {
			break
		}
		if int(prev.EndPosition().Row)+1 < int(next.StartPosition().Row) {
			break
		}
		body := text(prev, src)
		if accept != nil && !accept(body) {
			break
		}
		lines = append([]string{body}, lines...)
		next = prev
	}
	return lines
}

func stripLineComments(lines []string, marker string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "/*") {
			l = strings.TrimSuffix(strings.TrimPrefix(l, "/*"), "*/")
			for _, inner := range strings.Split(l, "\n") {
				inner = strings.TrimSpace(inner)
				inner = strings.TrimPrefix(inner, "*")
				inner = strings.TrimSpace(inner)
				if inner != "" {
					out = append(out, inner)
				}
			}
			continue
		}
		l = strings.TrimLeft(l, marker)
		out = append(out, strings.TrimSpace(l))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// typeName reduces a type expression to its bare name: generic arguments
// are dropped.
func typeName(s string) string {
	if i := strings.IndexAny(s, "<["); i > 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
