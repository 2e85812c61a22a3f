// Package store persists analysis graphs in SQLite so the MCP server and the
// CLI can query them between runs.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"codegraph/internal/graph"
	"codegraph/internal/scanner"
	"codegraph/util"
)

//go:embed schema.sql
var schemaSQL string

var ErrNoRun = errors.New("no completed run")

// DefaultImpactDepth bounds transitive caller searches.
const DefaultImpactDepth = 8

type Store struct {
	db   *sql.DB
	path string
}

// Run describes one persisted analysis run.
type Run struct {
	ID        string
	Root      string
	StartedAt time.Time
	Files     int
	Nodes     int
	Edges     int
	Failures  int
	// Pruned counts files stored by an earlier run that are gone.
	Pruned    int
	Duration  time.Duration
}

// RunFromReport converts a scan report into its persisted record.
func RunFromReport(r scanner.Report) Run {
	return Run{
		ID:        r.RunID,
		Root:      r.Root,
		StartedAt: r.Started,
		Files:     r.Files,
		Nodes:     r.Nodes,
		Edges:     r.Edges,
		Failures:  len(r.Failures),
		Duration:  r.Duration,
	}
}

// Edge is a call relationship together with the file it was found in.
type Edge struct {
	graph.CallRelationship
	FilePath string
}

// Impact is a transitive caller of a symbol.
type Impact struct {
	graph.Node
	Depth int `json:"depth"`
}

// Stats summarizes the stored graph.
type Stats struct {
	Files    int `json:"files"`
	Nodes    int `json:"nodes"`
	Edges    int `json:"edges"`
	Resolved int `json:"resolved_edges"`
}

// Open opens or creates the database at path and applies the schema. The
// special path ":memory:" keeps everything in memory.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// ReplaceGraph swaps the stored graph for g in one transaction and records
// the run. Files stored by an earlier run but absent from g are pruned and
// counted in run.Pruned; every other row is rewritten from g.
func (s *Store) ReplaceGraph(ctx context.Context, run Run, g graph.Graph) (Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return run, err
	}
	defer tx.Rollback()

	files := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		files[n.FilePath] = true
	}
	pruned, err := pruneStaleFiles(ctx, tx, files)
	if err != nil {
		return run, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM edges"); err != nil {
		return run, fmt.Errorf("clear edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM nodes"); err != nil {
		return run, fmt.Errorf("clear nodes: %w", err)
	}
	if err := upsertNodes(ctx, tx, g.Nodes); err != nil {
		return run, err
	}
	if err := upsertEdges(ctx, tx, EdgesOf(g)); err != nil {
		return run, err
	}

	run.Nodes, run.Edges, run.Pruned = len(g.Nodes), len(g.Edges), len(pruned)
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, root, started_at, files, nodes, edges, failures, pruned, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Root, run.StartedAt.UTC(), run.Files, run.Nodes, run.Edges, run.Failures, run.Pruned, run.Duration.Milliseconds())
	if err != nil {
		return run, fmt.Errorf("record run: %w", err)
	}
	return run, tx.Commit()
}

// EdgesOf attaches to each edge the file of its caller. Callers are looked up
// in file order, so an id shared by two files maps to the first one.
func EdgesOf(g graph.Graph) []Edge {
	files := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, ok := files[n.ComponentID]; !ok {
			files[n.ComponentID] = n.FilePath
		}
	}
	out := make([]Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, Edge{CallRelationship: e, FilePath: files[e.Caller]})
	}
	return out
}

func upsertNodes(ctx context.Context, tx *sql.Tx, nodes []graph.Node) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO nodes (
			row_id, component_id, name, component_type, node_type, file_path, relative_path,
			source_code, start_line, end_line, docstring, parameters, base_classes, class_name, display_name
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		params, err := encodeList(n.Parameters)
		if err != nil {
			return err
		}
		bases, err := encodeList(n.BaseClasses)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx,
			util.RowID(n.RelativePath, n.ComponentID), n.ComponentID, n.Name, string(n.ComponentType), n.NodeType,
			n.FilePath, n.RelativePath, n.SourceCode, n.StartLine, n.EndLine, n.Docstring,
			params, bases, n.ClassName, n.DisplayName,
		)
		if err != nil {
			return fmt.Errorf("insert node %s: %w", n.ComponentID, err)
		}
	}
	return nil
}

func upsertEdges(ctx context.Context, tx *sql.Tx, edges []Edge) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO edges (file_path, caller, callee, call_line, is_resolved, relation)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.FilePath, e.Caller, e.Callee, e.CallLine, e.IsResolved, graph.RelationCalls); err != nil {
			return fmt.Errorf("insert edge %s -> %s: %w", e.Caller, e.Callee, err)
		}
	}
	return nil
}

// pruneStaleFiles deletes the nodes and edges of stored files not in keep and
// returns those files.
func pruneStaleFiles(ctx context.Context, tx *sql.Tx, keep map[string]bool) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT DISTINCT file_path FROM nodes UNION SELECT DISTINCT file_path FROM edges")
	if err != nil {
		return nil, fmt.Errorf("list stored files: %w", err)
	}
	var stale []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			rows.Close()
			return nil, err
		}
		if !keep[f] {
			stale = append(stale, f)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, f := range stale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE file_path = ?", f); err != nil {
			return nil, fmt.Errorf("prune nodes of %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE file_path = ?", f); err != nil {
			return nil, fmt.Errorf("prune edges of %s: %w", f, err)
		}
	}
	return stale, nil
}

const nodeColumns = `component_id, name, component_type, node_type, file_path, relative_path,
	source_code, start_line, end_line, docstring, parameters, base_classes, class_name, display_name`

// GetSymbolsInFile returns the components of a file, by absolute or relative
// path, ordered by start line.
func (s *Store) GetSymbolsInFile(ctx context.Context, path string) ([]graph.Node, error) {
	return s.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes
		WHERE file_path = ? OR relative_path = ?
		ORDER BY start_line, component_id`, path, filepath.ToSlash(path))
}

// GetSymbolLocation finds components by bare name or component id.
func (s *Store) GetSymbolLocation(ctx context.Context, symbol string) ([]graph.Node, error) {
	return s.queryNodes(ctx, `SELECT `+nodeColumns+` FROM nodes
		WHERE name = ? OR component_id = ?
		ORDER BY relative_path, start_line`, symbol, symbol)
}

// FindImpact returns the transitive callers of symbol, which may be a bare
// name or a component id, up to maxDepth hops. Each caller is reported at
// its shortest distance.
func (s *Store) FindImpact(ctx context.Context, symbol string, maxDepth int) ([]Impact, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultImpactDepth
	}
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE seed(id) AS (
			SELECT component_id FROM nodes WHERE name = ? OR component_id = ?
			UNION
			SELECT ?
		),
		impact(id, depth) AS (
			SELECT id, 0 FROM seed
			UNION
			SELECT e.caller, impact.depth + 1
			FROM edges e JOIN impact ON e.callee = impact.id
			WHERE impact.depth < ?
		),
		best(id, depth) AS (
			SELECT id, MIN(depth) FROM impact WHERE depth > 0 GROUP BY id
		)
		SELECT `+prefixed("n.", nodeColumns)+`, best.depth
		FROM best JOIN nodes n ON n.component_id = best.id
		ORDER BY best.depth, n.relative_path, n.start_line`,
		symbol, symbol, symbol, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("impact query: %w", err)
	}
	defer rows.Close()

	var out []Impact
	for rows.Next() {
		var imp Impact
		if err := scanNode(rows, &imp.Node, &imp.Depth); err != nil {
			return nil, err
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// Callees returns the outgoing call edges of a component in call order.
func (s *Store) Callees(ctx context.Context, componentID string) ([]graph.CallRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT caller, callee, call_line, is_resolved FROM edges
		WHERE caller = ? ORDER BY call_line, callee`, componentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graph.CallRelationship
	for rows.Next() {
		var e graph.CallRelationship
		if err := rows.Scan(&e.Caller, &e.Callee, &e.CallLine, &e.IsResolved); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT file_path) FROM nodes),
			(SELECT COUNT(*) FROM nodes),
			(SELECT COUNT(*) FROM edges),
			(SELECT COUNT(*) FROM edges WHERE is_resolved = 1)`,
	).Scan(&st.Files, &st.Nodes, &st.Edges, &st.Resolved)
	return st, err
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var (
		r  Run
		ms int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, root, started_at, files, nodes, edges, failures, pruned, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&r.ID, &r.Root, &r.StartedAt, &r.Files, &r.Nodes, &r.Edges, &r.Failures, &r.Pruned, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRun
	}
	if err != nil {
		return Run{}, err
	}
	r.Duration = time.Duration(ms) * time.Millisecond
	return r, nil
}

func (s *Store) queryNodes(ctx context.Context, query string, args ...any) ([]graph.Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []graph.Node
	for rows.Next() {
		var n graph.Node
		if err := scanNode(rows, &n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNode(rows *sql.Rows, n *graph.Node, extra ...any) error {
	var (
		kind          string
		params, bases sql.NullString
	)
	dest := []any{
		&n.ComponentID, &n.Name, &kind, &n.NodeType, &n.FilePath, &n.RelativePath,
		&n.SourceCode, &n.StartLine, &n.EndLine, &n.Docstring, &params, &bases, &n.ClassName, &n.DisplayName,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	n.ID = n.ComponentID
	n.ComponentType = graph.ComponentType(kind)
	n.HasDocstring = n.Docstring != ""

	var err error
	if n.Parameters, err = decodeList(params); err != nil {
		return err
	}
	n.BaseClasses, err = decodeList(bases)
	return err
}

func encodeList(l []string) (sql.NullString, error) {
	if l == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid {
		return nil, nil
	}
	out := []string{}
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return out, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
