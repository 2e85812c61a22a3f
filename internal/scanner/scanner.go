// Package scanner discovers source files in a repository, dispatches them to
// the language analyzers and merges the per-file results into one graph.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"codegraph/internal/analyzer"
	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

// File is the (absolute path, relative path, content) triple handed to an
// analyzer.
type File = analyzer.File

// DefaultMaxFileSize is the largest file read during discovery.
const DefaultMaxFileSize int64 = 1 << 20

type Scanner struct {
	registry      *lang.Registry
	logger        *slog.Logger
	workers       int
	include       []string
	exclude       []string
	maxFileSize   int64
	gitignore     bool
	strictParse   bool
	strictMembers bool
}

// Option configures a Scanner.
type Option func(*Scanner)

func WithRegistry(r *lang.Registry) Option {
	return func(s *Scanner) {
		if r != nil {
			s.registry = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkers sets the number of concurrent analysis workers. Values below 1
// select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(s *Scanner) { s.workers = n }
}

// WithInclude restricts discovery to paths matching at least one pattern.
func WithInclude(patterns ...string) Option {
	return func(s *Scanner) { s.include = append(s.include, patterns...) }
}

// WithExclude drops paths matching any pattern.
func WithExclude(patterns ...string) Option {
	return func(s *Scanner) { s.exclude = append(s.exclude, patterns...) }
}

func WithMaxFileSize(n int64) Option {
	return func(s *Scanner) { s.maxFileSize = n }
}

// WithGitignore toggles honoring the repository's .gitignore.
func WithGitignore(enabled bool) Option {
	return func(s *Scanner) { s.gitignore = enabled }
}

func WithStrictParse(strict bool) Option {
	return func(s *Scanner) { s.strictParse = strict }
}

func WithStrictMembers(strict bool) Option {
	return func(s *Scanner) { s.strictMembers = strict }
}

func New(opts ...Option) *Scanner {
	s := &Scanner{
		logger:      slog.Default(),
		maxFileSize: DefaultMaxFileSize,
		gitignore:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = lang.NewRegistry(lang.WithLogger(s.logger))
	}
	if s.workers < 1 {
		s.workers = runtime.NumCPU()
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = DefaultMaxFileSize
	}
	return s
}

// Registry returns the grammar registry used for dispatch.
func (s *Scanner) Registry() *lang.Registry {
	return s.registry
}

// Scan discovers the files under root and analyzes them. Files that cannot
// be read are recorded as failures.
func (s *Scanner) Scan(ctx context.Context, root string) (graph.Graph, Report, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return graph.Graph{}, Report{}, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if err := validateRoot(abs); err != nil {
		return graph.Graph{}, Report{}, err
	}

	files, readFailures, err := s.Discover(ctx, abs)
	if err != nil {
		return graph.Graph{}, Report{}, err
	}

	g, report, err := s.AnalyzeRepository(ctx, files, abs)
	if err != nil {
		return graph.Graph{}, report, err
	}
	report.Files += len(readFailures)
	report.Failures = append(readFailures, report.Failures...)
	return g, report, nil
}

type fileResult struct {
	language string
	skipped  bool
	err      error
	result   analyzer.Result
}

// AnalyzeRepository analyzes files concurrently and concatenates the results
// in input order. Only an invalid root, a nil file list or cancellation
// fail the run; per-file problems end up in Report.Failures.
func (s *Scanner) AnalyzeRepository(ctx context.Context, files []File, repoPath string) (graph.Graph, Report, error) {
	if err := validateRoot(repoPath); err != nil {
		return graph.Graph{}, Report{}, err
	}
	if files == nil {
		return graph.Graph{}, Report{}, ErrInvalidFileList
	}

	report := newReport(repoPath)
	report.Files = len(files)
	start := report.Started

	partitions := partition(files, s.workers)
	results := make([][]fileResult, len(partitions))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, part := range partitions {
		eg.Go(func() error {
			out, err := s.worker(egCtx, part)
			results[i] = out
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		report.Duration = time.Since(start)
		return graph.Graph{}, report, err
	}

	var g graph.Graph
	idx := 0
	for _, part := range results {
		for _, r := range part {
			f := files[idx]
			idx++
			switch {
			case r.skipped:
				report.Skipped++
			case r.err != nil:
				report.Failures = append(report.Failures, FileError{Path: f.Path, Language: r.language, Err: r.err})
				s.logger.Warn("scanner.file_failed", "path", f.Path, "language", r.language, "error", r.err)
			default:
				report.Analyzed++
				report.Languages[r.language]++
				g.Append(r.result.Nodes, r.result.Edges)
			}
		}
	}
	report.Nodes = len(g.Nodes)
	report.Edges = len(g.Edges)
	report.Duration = time.Since(start)

	s.logger.Info("scanner.done", "report", report)
	return g, report, nil
}

// worker analyzes a contiguous slice of files with one parser.
func (s *Scanner) worker(ctx context.Context, files []File) ([]fileResult, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	out := make([]fileResult, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, s.analyzeFile(parser, f))
	}
	return out, nil
}

func (s *Scanner) analyzeFile(parser *sitter.Parser, f File) (r fileResult) {
	l, ok := s.registry.ForPath(f.Path)
	if !ok {
		s.logger.Debug("scanner.file_skipped", "path", f.Path, "reason", "unregistered extension")
		return fileResult{skipped: true}
	}
	r.language = l.Name

	defer func() {
		if p := recover(); p != nil {
			r = fileResult{language: l.Name, err: fmt.Errorf("%w: panic: %v", analyzer.ErrParseFailed, p)}
		}
	}()

	a := analyzer.New(f,
		analyzer.WithRegistry(s.registry),
		analyzer.WithParser(parser),
		analyzer.WithLogger(s.logger),
		analyzer.WithStrictParse(s.strictParse),
		analyzer.WithStrictMembers(s.strictMembers),
	)
	defer a.Close()

	res, err := a.Analyze()
	if errors.Is(err, analyzer.ErrUnsupported) {
		s.logger.Debug("scanner.file_skipped", "path", f.Path, "language", l.Name, "reason", "no analyzer")
		return fileResult{skipped: true}
	}
	r.result, r.err = res, err
	return r
}

// partition splits files into at most n contiguous, non-empty chunks.
func partition(files []File, n int) [][]File {
	if n > len(files) {
		n = len(files)
	}
	if n < 1 {
		return nil
	}
	parts := make([][]File, 0, n)
	for i := 0; i < n; i++ {
		lo, hi := i*len(files)/n, (i+1)*len(files)/n
		parts = append(parts, files[lo:hi])
	}
	return parts
}

func validateRoot(root string) error {
	if root == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	d, err := os.Open(root)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	return d.Close()
}
