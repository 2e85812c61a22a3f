package analyzer

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
)

// ecmaGrammar covers JavaScript and, with typed set, TypeScript and TSX.
// The TypeScript grammars extend the JavaScript one, so the shared node kinds
// behave the same.
type ecmaGrammar struct {
	name  string
	typed bool
}

func (g ecmaGrammar) Language() string { return g.name }

func (g ecmaGrammar) Declare(n *sitter.Node, scope Scope, src []byte) (Declaration, bool) {
	switch n.Kind() {
	case "function_declaration", "generator_function_declaration":
		name := text(n.ChildByFieldName("name"), src)
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentFunction,
			Parameters:  ecmaParameters(n, src),
			Docstring:   ecmaDocstring(n, src),
			DisplayName: "function " + name,
			Callable:    true,
		}, true

	case "variable_declarator":
		value := n.ChildByFieldName("value")
		if value == nil || !isEcmaFunction(value) {
			return Declaration{}, false
		}
		name := n.ChildByFieldName("name")
		if name == nil || name.Kind() != "identifier" {
			return Declaration{}, false
		}
		span := ecmaDeclaratorSpan(n)
		return Declaration{
			Node:        span,
			Name:        text(name, src),
			Kind:        graph.ComponentFunction,
			Parameters:  ecmaParameters(value, src),
			Docstring:   ecmaDocstring(span, src),
			DisplayName: "function " + text(name, src),
			Callable:    true,
		}, true

	case "class_declaration", "abstract_class_declaration", "class":
		nameNode := n.ChildByFieldName("name")
		if n.Kind() == "class" && nameNode == nil {
			// Anonymous class expression.
			return Declaration{}, false
		}
		name := text(nameNode, src)
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentClass,
			BaseClasses: g.bases(n, src),
			Docstring:   ecmaDocstring(n, src),
			DisplayName: "class " + name,
			Container:   true,
		}, true

	case "method_definition":
		name := text(n.ChildByFieldName("name"), src)
		d := Declaration{
			Name:        name,
			Kind:        graph.ComponentFunction,
			Parameters:  ecmaParameters(n, src),
			Docstring:   ecmaDocstring(n, src),
			DisplayName: "function " + name,
			Callable:    true,
		}
		return ecmaMember(d, scope), true

	case "field_definition", "public_field_definition":
		// Only fields initialized with a function are callable members.
		value := n.ChildByFieldName("value")
		if value == nil || !isEcmaFunction(value) {
			return Declaration{}, false
		}
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			nameNode = n.ChildByFieldName("property")
		}
		if nameNode == nil {
			return Declaration{}, false
		}
		name := text(nameNode, src)
		d := Declaration{
			Name:        name,
			Kind:        graph.ComponentFunction,
			Parameters:  ecmaParameters(value, src),
			Docstring:   ecmaDocstring(n, src),
			DisplayName: "function " + name,
			Callable:    true,
		}
		return ecmaMember(d, scope), true
	}

	if !g.typed {
		return Declaration{}, false
	}
	switch n.Kind() {
	case "interface_declaration":
		name := text(n.ChildByFieldName("name"), src)
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentInterface,
			BaseClasses: heritageNames(childByKind(n, "extends_type_clause"), src),
			Docstring:   ecmaDocstring(n, src),
			DisplayName: "interface " + name,
		}, true

	case "type_alias_declaration":
		name := text(n.ChildByFieldName("name"), src)
		return Declaration{
			Name:        name,
			Kind:        graph.ComponentAlias,
			Docstring:   ecmaDocstring(n, src),
			DisplayName: "type " + name,
		}, true
	}
	return Declaration{}, false
}

func (ecmaGrammar) Callee(n *sitter.Node, src []byte) (Call, bool) {
	var target *sitter.Node
	switch n.Kind() {
	case "call_expression":
		target = n.ChildByFieldName("function")
	case "new_expression":
		target = n.ChildByFieldName("constructor")
	default:
		return Call{}, false
	}
	if target == nil {
		return Call{}, false
	}
	switch target.Kind() {
	case "identifier":
		return Call{Name: text(target, src)}, true
	case "member_expression":
		return Call{
			Name:     text(target.ChildByFieldName("property"), src),
			Receiver: text(target.ChildByFieldName("object"), src),
			Member:   true,
		}, true
	}
	return Call{}, false
}

// bases lists the extended and implemented types of a class.
func (g ecmaGrammar) bases(n *sitter.Node, src []byte) []string {
	bases := []string{}
	heritage := childByKind(n, "class_heritage")
	if heritage == nil {
		return bases
	}
	if !g.typed {
		for _, c := range namedChildren(heritage) {
			bases = append(bases, typeName(text(c, src)))
		}
		return bases
	}
	for _, clause := range namedChildren(heritage) {
		bases = append(bases, heritageNames(clause, src)...)
	}
	return bases
}

func heritageNames(clause *sitter.Node, src []byte) []string {
	names := []string{}
	for _, c := range namedChildren(clause) {
		if c.Kind() == "type_arguments" {
			continue
		}
		names = append(names, typeName(text(c, src)))
	}
	return names
}

// ecmaDeclaratorSpan widens a declarator to its declaration statement when it
// is the only declarator, so the source keeps the const/let keyword.
func ecmaDeclaratorSpan(n *sitter.Node) *sitter.Node {
	parent := n.Parent()
	if parent == nil {
		return n
	}
	switch parent.Kind() {
	case "lexical_declaration", "variable_declaration":
	default:
		return n
	}
	declarators := 0
	for _, c := range namedChildren(parent) {
		if c.Kind() == "variable_declarator" {
			declarators++
		}
	}
	if declarators != 1 {
		return n
	}
	return parent
}

func ecmaParameters(fn *sitter.Node, src []byte) []string {
	params := []string{}
	if p := fn.ChildByFieldName("parameter"); p != nil {
		// Single unparenthesized arrow function parameter.
		return append(params, text(p, src))
	}
	for _, p := range namedChildren(fn.ChildByFieldName("parameters")) {
		if name := ecmaParamName(p, src); name != "" {
			params = append(params, name)
		}
	}
	return params
}

func ecmaParamName(p *sitter.Node, src []byte) string {
	if p == nil {
		return ""
	}
	switch p.Kind() {
	case "identifier":
		return text(p, src)
	case "assignment_pattern":
		return ecmaParamName(p.ChildByFieldName("left"), src)
	case "rest_pattern":
		return ecmaParamName(firstNamed(p), src)
	case "required_parameter", "optional_parameter":
		return ecmaParamName(p.ChildByFieldName("pattern"), src)
	}
	return ""
}

// ecmaDocstring returns the JSDoc block directly above a declaration, looking
// through an enclosing export statement.
func ecmaDocstring(n *sitter.Node, src []byte) string {
	target := n
	if parent := n.Parent(); parent != nil && parent.Kind() == "export_statement" {
		target = parent
	}
	lines := leadingComments(target, src, func(s string) bool {
		return strings.HasPrefix(s, "/**")
	})
	if len(lines) == 0 {
		return ""
	}
	return stripLineComments(lines[len(lines)-1:], "/")
}

func isEcmaFunction(n *sitter.Node) bool {
	switch n.Kind() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

// ecmaMember turns a callable declared inside a class body into a method.
func ecmaMember(d Declaration, scope Scope) Declaration {
	if scope.Owner == "" {
		return d
	}
	d.Kind = graph.ComponentMethod
	d.Owner = scope.Owner
	d.Receiver = "this"
	d.DisplayName = "method " + scope.Owner + "." + d.Name
	return d
}
