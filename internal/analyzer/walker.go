package analyzer

import (
	"fmt"
	"log/slog"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
)

// frame is the caller context threaded through the call pass.
type frame struct {
	caller   string
	owner    string
	receiver string
	scope    Scope
}

// transition records how entering a declaration node changes the frame. It
// is captured in the declaration pass so the call pass attributes calls to
// exactly the component ids that were emitted.
type transition struct {
	callable bool
	caller   string
	owner    string
	receiver string
	scope    Scope
}

func (t transition) apply(f frame) frame {
	if t.callable {
		return frame{caller: t.caller, owner: t.owner, receiver: t.receiver, scope: t.scope}
	}
	f.scope = t.scope
	return f
}

type walker struct {
	grammar       Grammar
	file          File
	module        string
	strictMembers bool
	logger        *slog.Logger

	nodes       []graph.Node
	byName      map[string]graph.Node
	functions   map[string]graph.Node
	methods     map[string]graph.Node
	idCount     map[string]int
	transitions map[uintptr]transition

	edges []graph.CallRelationship
	seen  map[graph.EdgeKey]bool
}

func newWalker(g Grammar, f File, module string, strictMembers bool, logger *slog.Logger) *walker {
	return &walker{
		grammar:       g,
		file:          f,
		module:        module,
		strictMembers: strictMembers,
		logger:        logger,
		byName:        make(map[string]graph.Node),
		functions:     make(map[string]graph.Node),
		methods:       make(map[string]graph.Node),
		idCount:       make(map[string]int),
		transitions:   make(map[uintptr]transition),
		seen:          make(map[graph.EdgeKey]bool),
	}
}

func (w *walker) run(root *sitter.Node) Result {
	w.declarations(root, Scope{})
	graph.SortNodesByLine(w.nodes)
	w.calls(root, frame{})
	return Result{Nodes: w.nodes, Edges: w.edges}
}

func (w *walker) declarations(n *sitter.Node, scope Scope) {
	childScope := scope
	if d, ok := w.grammar.Declare(n, scope, w.file.Content); ok {
		if node, ok := w.record(n, d); ok && (d.Callable || d.Container) {
			t := transition{scope: Scope{Owner: d.Name}}
			if d.Callable {
				t = transition{
					callable: true,
					caller:   node.ComponentID,
					owner:    d.Owner,
					receiver: d.Receiver,
				}
			}
			w.transitions[n.Id()] = t
			childScope = t.scope
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			w.declarations(child, childScope)
		}
	}
}

func (w *walker) record(n *sitter.Node, d Declaration) (graph.Node, bool) {
	id, err := graph.MakeComponentID(w.module, d.Owner, d.Name)
	if err != nil {
		w.logger.Debug("analyzer.declaration_skipped",
			"path", w.file.Path,
			"language", w.grammar.Language(),
			"node_type", n.Kind(),
			"line", startLine(n),
			"error", err,
		)
		return graph.Node{}, false
	}
	w.idCount[id]++
	if c := w.idCount[id]; c > 1 {
		id = fmt.Sprintf("%s#%d", id, c)
	}

	span := d.Node
	if span == nil {
		span = n
	}
	params := d.Parameters
	if d.Callable && params == nil {
		params = []string{}
	}

	node := graph.Node{
		ID:            id,
		Name:          d.Name,
		ComponentType: d.Kind,
		FilePath:      w.file.Path,
		RelativePath:  w.file.RelPath,
		SourceCode:    text(span, w.file.Content),
		StartLine:     startLine(span),
		EndLine:       endLine(span),
		HasDocstring:  d.Docstring != "",
		Docstring:     d.Docstring,
		Parameters:    params,
		NodeType:      string(d.Kind),
		BaseClasses:   d.BaseClasses,
		ClassName:     d.Owner,
		DisplayName:   d.DisplayName,
		ComponentID:   id,
	}
	w.nodes = append(w.nodes, node)
	w.byName[d.Name] = node
	if d.Owner != "" {
		w.methods[d.Owner+"."+d.Name] = node
	} else {
		w.functions[d.Name] = node
	}
	return node, true
}

func (w *walker) calls(n *sitter.Node, f frame) {
	if t, ok := w.transitions[n.Id()]; ok {
		f = t.apply(f)
	}

	if f.caller != "" {
		if call, ok := w.grammar.Callee(n, w.file.Content); ok && call.Name != "" {
			w.addEdge(f, call, startLine(n))
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			w.calls(child, f)
		}
	}
}

func (w *walker) addEdge(f frame, call Call, line int) {
	callee, resolved := w.resolve(f, call)
	rel := graph.CallRelationship{
		Caller:     f.caller,
		Callee:     callee,
		CallLine:   line,
		IsResolved: resolved,
	}
	if w.seen[rel.Key()] {
		return
	}
	w.seen[rel.Key()] = true
	w.edges = append(w.edges, rel)
}

// resolve matches a callee against this file's declarations. By default the
// bare name is looked up regardless of the receiver; member calls on
// unrelated values sharing a method name are indistinguishable. In strict
// mode a member call only resolves through its receiver: the owner type
// itself, or the receiver identifier of the enclosing method.
func (w *walker) resolve(f frame, call Call) (string, bool) {
	guess := graph.GuessCalleeID(w.module, call.Name)
	if !w.strictMembers {
		if target, ok := w.byName[call.Name]; ok {
			return target.ComponentID, true
		}
		return guess, false
	}

	if !call.Member {
		if target, ok := w.functions[call.Name]; ok {
			return target.ComponentID, true
		}
		return guess, false
	}
	if target, ok := w.methods[call.Receiver+"."+call.Name]; ok {
		return target.ComponentID, true
	}
	if f.owner != "" && f.receiver != "" && call.Receiver == f.receiver {
		if target, ok := w.methods[f.owner+"."+call.Name]; ok {
			return target.ComponentID, true
		}
	}
	return guess, false
}
