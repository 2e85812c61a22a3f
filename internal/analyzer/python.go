package analyzer

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

type pythonGrammar struct{}

func (pythonGrammar) Language() string { return lang.Python }

func (pythonGrammar) Declare(n *sitter.Node, scope Scope, src []byte) (Declaration, bool) {
	switch n.Kind() {
	case "function_definition":
		name := text(n.ChildByFieldName("name"), src)
		params := pythonParameters(n.ChildByFieldName("parameters"), src)
		d := Declaration{
			Name:        name,
			Kind:        graph.ComponentFunction,
			Parameters:  params,
			Docstring:   pythonDocstring(n, src),
			DisplayName: "def " + name,
			Callable:    true,
		}
		if scope.Owner != "" {
			d.Kind = graph.ComponentMethod
			d.Owner = scope.Owner
			d.DisplayName = "def " + scope.Owner + "." + name
			if len(params) > 0 {
				d.Receiver = params[0]
			}
		}
		return d, true

	case "class_definition":
		name := text(n.ChildByFieldName("name"), src)
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentClass,
			BaseClasses: pythonBases(n.ChildByFieldName("superclasses"), src),
			Docstring:   pythonDocstring(n, src),
			DisplayName: "class " + name,
			Container:   true,
		}, true
	}
	return Declaration{}, false
}

func (pythonGrammar) Callee(n *sitter.Node, src []byte) (Call, bool) {
	if n.Kind() != "call" {
		return Call{}, false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return Call{}, false
	}
	switch fn.Kind() {
	case "identifier":
		return Call{Name: text(fn, src)}, true
	case "attribute":
		return Call{
			Name:     text(fn.ChildByFieldName("attribute"), src),
			Receiver: text(fn.ChildByFieldName("object"), src),
			Member:   true,
		}, true
	}
	return Call{}, false
}

func pythonParameters(list *sitter.Node, src []byte) []string {
	params := []string{}
	for _, p := range namedChildren(list) {
		if name := pythonParamName(p, src); name != "" {
			params = append(params, name)
		}
	}
	return params
}

func pythonParamName(p *sitter.Node, src []byte) string {
	switch p.Kind() {
	case "identifier":
		return text(p, src)
	case "default_parameter", "typed_default_parameter":
		return pythonParamName(p.ChildByFieldName("name"), src)
	case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
		if c := firstNamed(p); c != nil {
			return pythonParamName(c, src)
		}
	}
	return ""
}

func pythonBases(list *sitter.Node, src []byte) []string {
	bases := []string{}
	for _, c := range namedChildren(list) {
		switch c.Kind() {
		case "keyword_argument", "comment", "list_splat", "dictionary_splat":
			continue
		}
		bases = append(bases, text(c, src))
	}
	return bases
}

// pythonDocstring returns the string literal opening a function or class
// body.
func pythonDocstring(n *sitter.Node, src []byte) string {
	body := n.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	stmt := body.NamedChild(0)
	if stmt.Kind() != "expression_statement" {
		return ""
	}
	str := firstNamed(stmt)
	if str == nil || str.Kind() != "string" {
		return ""
	}
	var b strings.Builder
	for _, c := range namedChildren(str) {
		if c.Kind() == "string_content" {
			b.WriteString(text(c, src))
		}
	}
	return cleanDocstring(b.String())
}

// cleanDocstring trims the indentation shared by the continuation lines of a
// docstring.
func cleanDocstring(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	indent := -1
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		w := len(l) - len(strings.TrimLeft(l, " \t"))
		if indent < 0 || w < indent {
			indent = w
		}
	}
	if indent > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= indent {
				lines[i] = lines[i][indent:]
			} else {
				lines[i] = strings.TrimSpace(lines[i])
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
