package analyzer

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

type goGrammar struct{}

func (goGrammar) Language() string { return lang.Go }

func (goGrammar) Declare(n *sitter.Node, _ Scope, src []byte) (Declaration, bool) {
	switch n.Kind() {
	case "function_declaration":
		name := text(n.ChildByFieldName("name"), src)
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentFunction,
			Parameters:  goParameters(n.ChildByFieldName("parameters"), src),
			Docstring:   goDocstring(n, src),
			DisplayName: "func " + name,
			Callable:    true,
		}, true

	case "method_declaration":
		name := text(n.ChildByFieldName("name"), src)
		owner, receiver := goReceiver(n.ChildByFieldName("receiver"), src)
		if owner == "" {
			// A method without a resolvable owner is malformed.
			name = ""
		}
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentMethod,
			Owner:       owner,
			Receiver:    receiver,
			Parameters:  goParameters(n.ChildByFieldName("parameters"), src),
			Docstring:   goDocstring(n, src),
			DisplayName: "func (" + owner + ") " + name,
			Callable:    true,
		}, true

	case "type_spec":
		var kind graph.ComponentType
		switch t := n.ChildByFieldName("type"); {
		case t == nil:
			return Declaration{}, false
		case t.Kind() == "struct_type":
			kind = graph.ComponentStruct
		case t.Kind() == "interface_type":
			kind = graph.ComponentInterface
		default:
			return Declaration{}, false
		}
		name := text(n.ChildByFieldName("name"), src)
		span := goTypeSpan(n)
		return Declaration{
			Node:        span,
			Name:        name,
			Kind:        kind,
			Docstring:   goDocstring(span, src),
			DisplayName: string(kind) + " " + name,
		}, true
	}
	return Declaration{}, false
}

func (goGrammar) Callee(n *sitter.Node, src []byte) (Call, bool) {
	if n.Kind() != "call_expression" {
		return Call{}, false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return Call{}, false
	}
	switch fn.Kind() {
	case "identifier":
		return Call{Name: text(fn, src)}, true
	case "selector_expression":
		return Call{
			Name:     text(fn.ChildByFieldName("field"), src),
			Receiver: text(fn.ChildByFieldName("operand"), src),
			Member:   true,
		}, true
	}
	return Call{}, false
}

// goTypeSpan widens a lone type_spec to its type_declaration so the source
// includes the type keyword. Specs of a grouped declaration keep their own
// span.
func goTypeSpan(spec *sitter.Node) *sitter.Node {
	parent := spec.Parent()
	if parent == nil || parent.Kind() != "type_declaration" {
		return spec
	}
	specs := 0
	for _, c := range namedChildren(parent) {
		if c.Kind() == "type_spec" || c.Kind() == "type_alias" {
			specs++
		}
	}
	if specs != 1 {
		return spec
	}
	return parent
}

// goReceiver returns the owner type and receiver identifier of a method.
// Pointer, generic and qualified receiver types are unwrapped.
func goReceiver(list *sitter.Node, src []byte) (owner, receiver string) {
	if list == nil {
		return "", ""
	}
	param := childByKind(list, "parameter_declaration")
	if param == nil {
		return "", ""
	}
	receiver = text(param.ChildByFieldName("name"), src)

	t := param.ChildByFieldName("type")
	for t != nil {
		switch t.Kind() {
		case "type_identifier":
			return text(t, src), receiver
		case "pointer_type", "parenthesized_type":
			t = firstNamed(t)
		case "generic_type":
			t = t.ChildByFieldName("type")
		case "qualified_type":
			t = t.ChildByFieldName("name")
		default:
			return typeName(text(t, src)), receiver
		}
	}
	return "", receiver
}

func goParameters(list *sitter.Node, src []byte) []string {
	params := []string{}
	for _, p := range namedChildren(list) {
		switch p.Kind() {
		case "parameter_declaration", "variadic_parameter_declaration":
			for _, c := range namedChildren(p) {
				if c.Kind() == "identifier" {
					params = append(params, text(c, src))
				}
			}
		}
	}
	return params
}

func goDocstring(n *sitter.Node, src []byte) string {
	lines := leadingComments(n, src, func(s string) bool {
		return strings.HasPrefix(s, "//")
	})
	if len(lines) == 0 {
		return ""
	}
	return stripLineComments(lines, "/")
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if n == nil || n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(0)
}
