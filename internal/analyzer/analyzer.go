// Package analyzer extracts components and call relationships from a single
// source file. Every language shares one two pass walker: declarations
// first, then calls attributed to their innermost enclosing function.
package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/lang"
)

var (
	ErrUnsupported        = errors.New("unsupported file type")
	ErrGrammarUnavailable = errors.New("grammar unavailable")
	ErrParseFailed        = errors.New("parse failed")
)

// File is one source file handed to an analyzer.
type File struct {
	Path    string
	RelPath string
	Content []byte
}

// NewFile builds a File, deriving the repository relative path. When path is
// not below repoPath the path itself is used.
func NewFile(path, repoPath string, content []byte) File {
	rel := path
	if repoPath != "" {
		if r, err := filepath.Rel(repoPath, path); err == nil {
			rel = r
		}
	}
	return File{Path: path, RelPath: filepath.ToSlash(rel), Content: content}
}

// Result holds the components and edges of one file. Nodes are sorted by
// start line; edges are in traversal order.
type Result struct {
	Nodes []graph.Node
	Edges []graph.CallRelationship
}

type options struct {
	registry      *lang.Registry
	parser        *sitter.Parser
	logger        *slog.Logger
	strict        bool
	strictMembers bool
}

// Option configures an Analyzer.
type Option func(*options)

// WithRegistry sets the grammar registry. A process wide default is used
// otherwise.
func WithRegistry(r *lang.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithParser makes the analyzer use a caller owned parser instead of
// creating its own. The parser must not be used concurrently.
func WithParser(p *sitter.Parser) Option {
	return func(o *options) { o.parser = p }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStrictParse rejects files whose syntax tree contains errors.
func WithStrictParse(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithStrictMembers resolves member calls only through the owner type or the
// enclosing method's receiver.
func WithStrictMembers(strict bool) Option {
	return func(o *options) { o.strictMembers = strict }
}

var defaultRegistry = sync.OnceValue(func() *lang.Registry {
	return lang.NewRegistry()
})

// Analyzer analyzes one file. An analyzer whose grammar could not be
// initialized is a no-op: Analyze returns an empty result.
type Analyzer struct {
	file      File
	language  *lang.Language
	grammar   Grammar
	parser    *sitter.Parser
	ownParser bool
	initErr   error
	opts      options
}

// New prepares an analyzer for file.
func New(file File, opts ...Option) *Analyzer {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = defaultRegistry()
	}

	a := &Analyzer{file: file, opts: o}
	a.initErr = a.init()
	if a.initErr != nil && !errors.Is(a.initErr, ErrUnsupported) {
		o.logger.Warn("analyzer.init_failed",
			"path", file.Path,
			"language", a.Language(),
			"error", a.initErr,
		)
	}
	return a
}

func (a *Analyzer) init() error {
	l, ok := a.opts.registry.ForPath(a.file.Path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(a.file.Path))
	}
	a.language = l

	g, ok := GrammarFor(l.Name)
	if !ok {
		return fmt.Errorf("%w: no analyzer for %s", ErrUnsupported, l.Name)
	}
	a.grammar = g

	tsLang, err := a.opts.registry.Load(l.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGrammarUnavailable, err)
	}

	a.parser = a.opts.parser
	if a.parser == nil {
		a.parser = sitter.NewParser()
		a.ownParser = true
	}
	if err := a.parser.SetLanguage(tsLang); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrGrammarUnavailable, l.Name, err)
	}
	return nil
}

// Language returns the detected language name, or "" when unsupported.
func (a *Analyzer) Language() string {
	if a.language == nil {
		return ""
	}
	return a.language.Name
}

// Err returns the initialization error, if any.
func (a *Analyzer) Err() error {
	return a.initErr
}

// ModulePath returns the dotted module path used as component id prefix.
func (a *Analyzer) ModulePath() string {
	if a.language == nil {
		return graph.ModulePath(a.file.RelPath)
	}
	return graph.ModulePath(a.file.RelPath, a.language.Extensions...)
}

// Analyze parses the file and runs both passes. A failing file yields an
// empty result together with an error describing the failure; the error is
// diagnostic only.
func (a *Analyzer) Analyze() (res Result, err error) {
	if a.initErr != nil {
		return Result{}, a.initErr
	}

	content := a.file.Content
	if !utf8.Valid(content) || bytes.IndexByte(content, 0) >= 0 {
		return Result{}, a.parseError(errors.New("content is not valid UTF-8 text"))
	}

	tree := a.parser.Parse(content, nil)
	if tree == nil {
		return Result{}, a.parseError(errors.New("parser returned no tree"))
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return Result{}, a.parseError(errors.New("empty syntax tree"))
	}
	if a.opts.strict && root.HasError() {
		return Result{}, a.parseError(errors.New("syntax errors in file"))
	}

	defer func() {
		if p := recover(); p != nil {
			res, err = Result{}, a.parseError(fmt.Errorf("walker panic: %v", p))
		}
	}()

	w := newWalker(a.grammar, a.file, a.ModulePath(), a.opts.strictMembers, a.opts.logger)
	res = w.run(root)

	a.opts.logger.Debug("analyzer.done",
		"path", a.file.Path,
		"language", a.Language(),
		"nodes", len(res.Nodes),
		"edges", len(res.Edges),
	)
	return res, nil
}

// parseError wraps a parse failure. It is logged at debug level only; the
// caller owns reporting the failed file.
func (a *Analyzer) parseError(cause error) error {
	err := fmt.Errorf("%w: %s: %w", ErrParseFailed, a.file.Path, cause)
	a.opts.logger.Debug("analyzer.parse_failed",
		"path", a.file.Path,
		"language", a.Language(),
		"error", cause,
	)
	return err
}

// Close releases the parser if the analyzer created it.
func (a *Analyzer) Close() {
	if a.ownParser && a.parser != nil {
		a.parser.Close()
		a.parser = nil
	}
}

// AnalyzeFile is a convenience wrapper running a throwaway analyzer. Any
// failure yields an empty result.
func AnalyzeFile(path, repoPath string, content []byte, opts ...Option) ([]graph.Node, []graph.CallRelationship) {
	a := New(NewFile(path, repoPath, content), opts...)
	defer a.Close()
	res, _ := a.Analyze()
	return res.Nodes, res.Edges
}

// LineCount returns the number of lines in content.
func LineCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
