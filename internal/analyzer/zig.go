package analyzer

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

type zigGrammar struct{}

func (zigGrammar) Language() string { return lang.Zig }

func (zigGrammar) Declare(n *sitter.Node, scope Scope, src []byte) (Declaration, bool) {
	switch n.Kind() {
	case "function_declaration":
		name := text(zigName(n), src)
		params := zigParameters(n, src)
		d := Declaration{
			Name:        name,
			Kind:        graph.ComponentFunction,
			Parameters:  params,
			Docstring:   zigDocstring(n, src),
			DisplayName: "fn " + name,
			Callable:    true,
		}
		if scope.Owner != "" {
			d.Kind = graph.ComponentMethod
			d.Owner = scope.Owner
			d.DisplayName = "fn " + scope.Owner + "." + name
			if len(params) > 0 {
				d.Receiver = params[0]
			}
		}
		return d, true

	case "variable_declaration":
		// const Name = struct { ... };
		container := childByKind(n, "struct_declaration", "union_declaration", "enum_declaration", "opaque_declaration")
		if container == nil {
			return Declaration{}, false
		}
		name := text(zigName(n), src)
		kind := strings.TrimSuffix(container.Kind(), "_declaration")
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentStruct,
			Docstring:   zigDocstring(n, src),
			DisplayName: kind + " " + name,
			Container:   true,
		}, true
	}
	return Declaration{}, false
}

func (zigGrammar) Callee(n *sitter.Node, src []byte) (Call, bool) {
	if n.Kind() != "call_expression" {
		return Call{}, false
	}
	target := n.ChildByFieldName("function")
	if target == nil {
		target = n.NamedChild(0)
	}
	if target == nil {
		return Call{}, false
	}
	switch target.Kind() {
	case "identifier":
		return Call{Name: text(target, src)}, true
	case "field_expression":
		return Call{
			Name:     text(target.ChildByFieldName("member"), src),
			Receiver: text(target.ChildByFieldName("object"), src),
			Member:   true,
		}, true
	}
	return Call{}, false
}

// zigName returns the declared identifier, which older grammar revisions
// wrap in a symbol_declaration.
func zigName(n *sitter.Node) *sitter.Node {
	if name := n.ChildByFieldName("name"); name != nil {
		return name
	}
	if sym := childByKind(n, "symbol_declaration"); sym != nil {
		return zigName(sym)
	}
	return childByKind(n, "identifier")
}

func zigParameters(fn *sitter.Node, src []byte) []string {
	params := []string{}
	for _, p := range namedChildren(fn.ChildByFieldName("parameters")) {
		if p.Kind() != "parameter" {
			continue
		}
		name := p.ChildByFieldName("name")
		if name == nil {
			name = childByKind(p, "identifier")
		}
		if name != nil {
			params = append(params, text(name, src))
		}
	}
	return params
}

// zigDocstring returns the /// doc comment block above a declaration.
func zigDocstring(n *sitter.Node, src []byte) string {
	lines := leadingComments(n, src, func(s string) bool {
		return strings.HasPrefix(s, "///")
	})
	if len(lines) == 0 {
		return ""
	}
	return stripLineComments(lines, "/")
}
