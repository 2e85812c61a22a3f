package graph

// ComponentType is the kind of a declared component. The vocabulary is open:
// analyzers may introduce language specific kinds.
type ComponentType string

const (
	ComponentFunction  ComponentType = "function"
	ComponentMethod    ComponentType = "method"
	ComponentStruct    ComponentType = "struct"
	ComponentInterface ComponentType = "interface"
	ComponentClass     ComponentType = "class"
	ComponentAlias     ComponentType = "type"
)

// Node represents one declared component (function, method, struct,
// interface, class or type alias) of a single source file.
type Node struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	ComponentType ComponentType `json:"component_type"`
	FilePath      string        `json:"file_path"`
	RelativePath  string        `json:"relative_path"`
	SourceCode    string        `json:"source_code"`
	StartLine     int           `json:"start_line"`
	EndLine       int           `json:"end_line"`
	HasDocstring  bool          `json:"has_docstring"`
	Docstring     string        `json:"docstring"`
	Parameters    []string      `json:"parameters"`
	NodeType      string        `json:"node_type"`
	BaseClasses   []string      `json:"base_classes"`
	ClassName     string        `json:"class_name"`
	DisplayName   string        `json:"display_name"`
	ComponentID   string        `json:"component_id"`
}

// CallRelationship represents one attributed call expression.
type CallRelationship struct {
	Caller     string `json:"caller"`
	Callee     string `json:"callee"`
	CallLine   int    `json:"call_line"`
	IsResolved bool   `json:"is_resolved"`
}

// Key returns the deduplication key of the relationship.
func (r CallRelationship) Key() EdgeKey {
	return EdgeKey{Caller: r.Caller, Callee: r.Callee, CallLine: r.CallLine}
}

// EdgeKey identifies a call site for a caller/callee pair.
type EdgeKey struct {
	Caller   string
	Callee   string
	CallLine int
}

// RelationCalls is the relation name of a persisted call edge.
const RelationCalls = "calls"
