// Package server exposes a repository's call graph to agents over MCP.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"codegraph/internal/graph"
	"codegraph/internal/scanner"
	"codegraph/internal/store"
)

//go:embed prompt.md
var defaultSystemPrompt string

// Version is reported to MCP clients.
var Version = "dev"

// ErrIndexInProgress is returned when an index is requested while one runs.
var ErrIndexInProgress = errors.New("indexing already in progress")

type IndexStatus string

const (
	IndexStatusIdle       IndexStatus = "idle"
	IndexStatusInProgress IndexStatus = "in_progress"
	IndexStatusReady      IndexStatus = "ready"
	IndexStatusFailed     IndexStatus = "failed"
)

// IndexSummary describes the outcome of one index run.
type IndexSummary struct {
	RunID    string        `json:"run_id"`
	Files    int           `json:"files"`
	Analyzed int           `json:"analyzed"`
	Failed   int           `json:"failed"`
	Pruned   int           `json:"pruned"`
	Nodes    int           `json:"nodes"`
	Edges    int           `json:"edges"`
	Duration time.Duration `json:"-"`
}

type Server struct {
	mcpServer    *mcp.Server
	scanner      *scanner.Scanner
	store        *store.Store
	root         string
	logger       *slog.Logger
	systemPrompt string
	waitTimeout  time.Duration

	indexMu       sync.RWMutex
	indexStatus   IndexStatus
	indexErr      error
	indexStarted  time.Time
	indexDuration time.Duration
	indexReady    chan struct{}
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSystemPrompt replaces the usage guidelines served as a resource.
func WithSystemPrompt(p string) Option {
	return func(s *Server) {
		if p != "" {
			s.systemPrompt = p
		}
	}
}

// WithWaitTimeout bounds how long query tools wait for a running index.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

// New builds a server for the repository at root. Queries read st; the
// index tool fills it with sc.
func New(sc *scanner.Scanner, st *store.Store, root string, opts ...Option) *Server {
	s := &Server{
		scanner:      sc,
		store:        st,
		root:         root,
		logger:       slog.Default(),
		systemPrompt: defaultSystemPrompt,
		waitTimeout:  30 * time.Second,
		indexStatus:  IndexStatusIdle,
		indexReady:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "codegraph",
		Version: Version,
	}, &mcp.ServerOptions{
		Instructions: s.systemPrompt,
	})
	s.registerTools()
	s.registerResources()
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server {
	return s.mcpServer
}

// Run serves MCP over stdio until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MarkReady records an index built outside the server, e.g. by the CLI
// before serving.
func (s *Server) MarkReady() {
	s.setIndexStatus(IndexStatusReady, nil)
}

// Index scans the repository and replaces the stored graph. Only one index
// runs at a time.
func (s *Server) Index(ctx context.Context) (IndexSummary, error) {
	s.indexMu.Lock()
	if s.indexStatus == IndexStatusInProgress {
		s.indexMu.Unlock()
		return IndexSummary{}, ErrIndexInProgress
	}
	if s.indexStatus == IndexStatusReady || s.indexStatus == IndexStatusFailed {
		s.indexReady = make(chan struct{})
	}
	s.indexStatus = IndexStatusInProgress
	s.indexErr = nil
	s.indexStarted = time.Now()
	s.indexMu.Unlock()

	summary, err := s.index(ctx)
	if err != nil {
		s.setIndexStatus(IndexStatusFailed, err)
		s.logger.Error("server.index_failed", "error", err)
		return IndexSummary{}, err
	}
	s.setIndexStatus(IndexStatusReady, nil)
	return summary, nil
}

func (s *Server) index(ctx context.Context) (IndexSummary, error) {
	started := time.Now()
	report, run, err := s.store.Index(ctx, s.scanner, s.root)
	if err != nil {
		return IndexSummary{}, err
	}
	return IndexSummary{
		RunID:    report.RunID,
		Files:    report.Files,
		Analyzed: report.Analyzed,
		Failed:   len(report.Failures),
		Pruned:   run.Pruned,
		Nodes:    run.Nodes,
		Edges:    run.Edges,
		Duration: time.Since(started),
	}, nil
}

func (s *Server) setIndexStatus(status IndexStatus, err error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	prev := s.indexStatus
	s.indexStatus = status
	s.indexErr = err
	if status == IndexStatusReady || status == IndexStatusFailed {
		if !s.indexStarted.IsZero() {
			s.indexDuration = time.Since(s.indexStarted)
		}
		if prev != IndexStatusReady && prev != IndexStatusFailed {
			close(s.indexReady)
		}
	}
}

// GetIndexStatus returns the current status, the last error and the
// duration of the last finished run.
func (s *Server) GetIndexStatus() (IndexStatus, error, time.Duration) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.indexStatus, s.indexErr, s.indexDuration
}

// WaitForIndex blocks until an index run has finished or ctx is done. It
// fails when the last run failed.
func (s *Server) WaitForIndex(ctx context.Context) error {
	s.indexMu.RLock()
	ready := s.indexReady
	s.indexMu.RUnlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	_, err, _ := s.GetIndexStatus()
	return err
}

// awaitIndex is the common prelude of query tools. It returns a non-nil
// result when the tool cannot answer yet.
func (s *Server) awaitIndex(ctx context.Context) *mcp.CallToolResult {
	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()
	if err := s.WaitForIndex(waitCtx); err != nil {
		status, indexErr, _ := s.GetIndexStatus()
		if indexErr != nil {
			return errorResult(fmt.Sprintf("Indexing failed: %v", indexErr))
		}
		if status == IndexStatusInProgress {
			return errorResult("Indexing in progress, please try again")
		}
		if status == IndexStatusIdle {
			return errorResult("Workspace not indexed yet, call the index tool first")
		}
		return errorResult(fmt.Sprintf("Indexing wait failed: %v", err))
	}
	return nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func nodeRange(n graph.Node) string {
	return fmt.Sprintf("%d-%d", n.StartLine, n.EndLine)
}
