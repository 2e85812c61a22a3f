package graph

import (
	"fmt"
	"sort"
)

// Graph is the repository wide collection of components and call edges.
// Nodes are grouped by file; within a file they are ordered by start line.
type Graph struct {
	Nodes []Node             `json:"nodes"`
	Edges []CallRelationship `json:"call_relationships"`
}

// Append concatenates one file's result onto the graph.
func (g *Graph) Append(nodes []Node, edges []CallRelationship) {
	g.Nodes = append(g.Nodes, nodes...)
	g.Edges = append(g.Edges, edges...)
}

// SortByLocation orders nodes by relative path, then start line. The
// aggregator never does this itself.
func (g *Graph) SortByLocation() {
	sort.SliceStable(g.Nodes, func(i, j int) bool {
		a, b := g.Nodes[i], g.Nodes[j]
		if a.RelativePath != b.RelativePath {
			return a.RelativePath < b.RelativePath
		}
		return a.StartLine < b.StartLine
	})
}

// NodeByID returns the first node with the given component id.
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ComponentID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Files returns the distinct relative paths in node order.
func (g *Graph) Files() []string {
	seen := make(map[string]bool)
	var files []string
	for _, n := range g.Nodes {
		if !seen[n.RelativePath] {
			seen[n.RelativePath] = true
			files = append(files, n.RelativePath)
		}
	}
	return files
}

// SortNodesByLine orders one file's nodes ascending by start line, keeping
// declaration order for equal lines.
func SortNodesByLine(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].StartLine < nodes[j].StartLine
	})
}

// Violation describes a broken invariant found by Validate.
type Violation struct {
	ID     string
	Reason string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.ID, v.Reason)
}

// Validate checks one file's output: line bounds against lineCount, start
// line ordering, component id uniqueness and edge uniqueness.
func Validate(nodes []Node, edges []CallRelationship, lineCount int) []Violation {
	var out []Violation
	ids := make(map[string]bool, len(nodes))
	prev := 0
	for _, n := range nodes {
		if n.StartLine < 1 || n.StartLine > n.EndLine || n.EndLine > lineCount {
			out = append(out, Violation{ID: n.ComponentID, Reason: fmt.Sprintf("lines %d-%d outside 1-%d", n.StartLine, n.EndLine, lineCount)})
		}
		if n.StartLine < prev {
			out = append(out, Violation{ID: n.ComponentID, Reason: "nodes not sorted by start line"})
		}
		prev = n.StartLine
		if n.ID != n.ComponentID {
			out = append(out, Violation{ID: n.ComponentID, Reason: "id and component_id differ"})
		}
		if ids[n.ComponentID] {
			out = append(out, Violation{ID: n.ComponentID, Reason: "duplicate component id"})
		}
		ids[n.ComponentID] = true
	}

	keys := make(map[EdgeKey]bool, len(edges))
	for _, e := range edges {
		if keys[e.Key()] {
			out = append(out, Violation{ID: e.Caller, Reason: fmt.Sprintf("duplicate edge to %s at line %d", e.Callee, e.CallLine)})
		}
		keys[e.Key()] = true
	}
	return out
}

// ValidateGraph applies Validate per file. lineCounts maps relative paths to
// their line counts; nodes of files missing from it are checked for ordering
// and uniqueness only.
func ValidateGraph(g Graph, lineCounts map[string]int) []Violation {
	byFile := make(map[string][]Node)
	var order []string
	for _, n := range g.Nodes {
		if _, ok := byFile[n.RelativePath]; !ok {
			order = append(order, n.RelativePath)
		}
		byFile[n.RelativePath] = append(byFile[n.RelativePath], n)
	}

	var out []Violation
	for _, f := range order {
		lines, ok := lineCounts[f]
		if !ok {
			lines = int(^uint(0) >> 1)
		}
		out = append(out, Validate(byFile[f], nil, lines)...)
	}

	keys := make(map[EdgeKey]bool, len(g.Edges))
	for _, e := range g.Edges {
		if keys[e.Key()] {
			out = append(out, Violation{ID: e.Caller, Reason: fmt.Sprintf("duplicate edge to %s at line %d", e.Callee, e.CallLine)})
		}
		keys[e.Key()] = true
	}
	return out
}
