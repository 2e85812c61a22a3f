package analyzer

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

type luaGrammar struct{}

func (luaGrammar) Language() string { return lang.Lua }

func (luaGrammar) Declare(n *sitter.Node, _ Scope, src []byte) (Declaration, bool) {
	switch n.Kind() {
	case "function_declaration", "local_function_declaration":
		d := Declaration{
			Kind:       graph.ComponentFunction,
			Parameters: luaParameters(n, src),
			Docstring:  luaDocstring(n, src),
			Callable:   true,
		}
		name := n.ChildByFieldName("name")
		if name == nil {
			return d, true
		}
		switch name.Kind() {
		case "identifier":
			d.Name = text(name, src)
			d.DisplayName = "function " + d.Name
		case "dot_index_expression":
			d.Kind = graph.ComponentMethod
			d.Owner = text(name.ChildByFieldName("table"), src)
			d.Name = text(name.ChildByFieldName("field"), src)
			d.DisplayName = "function " + d.Owner + "." + d.Name
		case "method_index_expression":
			d.Kind = graph.ComponentMethod
			d.Owner = text(name.ChildByFieldName("table"), src)
			d.Name = text(name.ChildByFieldName("method"), src)
			d.Receiver = "self"
			d.DisplayName = "function " + d.Owner + ":" + d.Name
		}
		return d, true

	case "assignment_statement":
		// name = function(...) ... end
		vars := childByKind(n, "variable_list")
		values := childByKind(n, "expression_list")
		if vars == nil || values == nil || vars.NamedChildCount() != 1 || values.NamedChildCount() != 1 {
			return Declaration{}, false
		}
		fn := values.NamedChild(0)
		target := vars.NamedChild(0)
		if fn.Kind() != "function_definition" || target.Kind() != "identifier" {
			return Declaration{}, false
		}
		name := text(target, src)
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentFunction,
			Parameters:  luaParameters(fn, src),
			Docstring:   luaDocstring(luaStatement(n), src),
			DisplayName: "function " + name,
			Callable:    true,
		}, true
	}
	return Declaration{}, false
}

func (luaGrammar) Callee(n *sitter.Node, src []byte) (Call, bool) {
	if n.Kind() != "function_call" {
		return Call{}, false
	}
	target := n.ChildByFieldName("name")
	if target == nil {
		return Call{}, false
	}
	switch target.Kind() {
	case "identifier":
		return Call{Name: text(target, src)}, true
	case "dot_index_expression":
		return Call{
			Name:     text(target.ChildByFieldName("field"), src),
			Receiver: text(target.ChildByFieldName("table"), src),
			Member:   true,
		}, true
	case "method_index_expression":
		return Call{
			Name:     text(target.ChildByFieldName("method"), src),
			Receiver: text(target.ChildByFieldName("table"), src),
			Member:   true,
		}, true
	}
	return Call{}, false
}

func luaParameters(fn *sitter.Node, src []byte) []string {
	params := []string{}
	for _, p := range namedChildren(fn.ChildByFieldName("parameters")) {
		if p.Kind() == "identifier" {
			params = append(params, text(p, src))
		}
	}
	return params
}

// luaStatement lifts an assignment to its local declaration, where the
// leading comments are attached.
func luaStatement(n *sitter.Node) *sitter.Node {
	if parent := n.Parent(); parent != nil && parent.Kind() == "variable_declaration" {
		return parent
	}
	return n
}

func luaDocstring(n *sitter.Node, src []byte) string {
	lines := leadingComments(n, src, func(s string) bool {
		return strings.HasPrefix(s, "--")
	})
	if len(lines) == 0 {
		return ""
	}
	return stripLineComments(lines, "-")
}
