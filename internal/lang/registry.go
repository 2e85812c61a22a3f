// Package lang maps source files to the tree-sitter grammars linked into the
// binary and loads those grammars on demand.
package lang

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unsafe"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_lua "github.com/tree-sitter-grammars/tree-sitter-lua/bindings/go"
	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

var (
	ErrGrammarNotFound = errors.New("grammar not found")
	ErrIncompatibleABI = errors.New("incompatible grammar ABI version")
)

const (
	Go         = "go"
	Python     = "python"
	JavaScript = "javascript"
	TypeScript = "typescript"
	TSX        = "tsx"
	Lua        = "lua"
	Zig        = "zig"
)

// Language describes one grammar binding.
type Language struct {
	Name       string
	Extensions []string
	binding    func() unsafe.Pointer
}

// Builtin lists every grammar compiled into the binary.
var Builtin = []*Language{
	{Name: Go, Extensions: []string{".go"}, binding: tree_sitter_go.Language},
	{Name: Python, Extensions: []string{".py", ".pyi"}, binding: tree_sitter_python.Language},
	{Name: JavaScript, Extensions: []string{".js", ".jsx", ".mjs", ".cjs"}, binding: tree_sitter_javascript.Language},
	{Name: TypeScript, Extensions: []string{".ts", ".mts", ".cts"}, binding: tree_sitter_typescript.LanguageTypescript},
	{Name: TSX, Extensions: []string{".tsx"}, binding: tree_sitter_typescript.LanguageTSX},
	{Name: Lua, Extensions: []string{".lua"}, binding: tree_sitter_lua.Language},
	{Name: Zig, Extensions: []string{".zig"}, binding: tree_sitter_zig.Language},
}

// Registry resolves files to languages and caches loaded grammars. A grammar
// that failed to load stays failed for the lifetime of the registry.
type Registry struct {
	languages   map[string]*Language
	byExtension map[string]*Language
	loaded      map[string]*sitter.Language
	failed      map[string]error
	logger      *slog.Logger
	mu          sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for grammar diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLanguages registers additional or replacement languages.
func WithLanguages(langs ...*Language) Option {
	return func(r *Registry) {
		for _, l := range langs {
			r.register(l)
		}
	}
}

// NewRegistry returns a registry holding the builtin grammars.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		languages:   make(map[string]*Language),
		byExtension: make(map[string]*Language),
		loaded:      make(map[string]*sitter.Language),
		failed:      make(map[string]error),
		logger:      slog.Default(),
	}
	for _, l := range Builtin {
		r.register(l)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewLanguage builds a Language from a raw binding pointer provider.
func NewLanguage(name string, extensions []string, binding func() unsafe.Pointer) *Language {
	return &Language{Name: name, Extensions: extensions, binding: binding}
}

func (r *Registry) register(l *Language) {
	r.languages[l.Name] = l
	for _, ext := range l.Extensions {
		r.byExtension[strings.ToLower(ext)] = l
	}
}

// Enable restricts the registry to the named languages. Unknown names are
// reported as an error and nothing is changed.
func (r *Registry) Enable(names ...string) error {
	if len(names) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.languages[n]; !ok {
			return fmt.Errorf("%w: %s", ErrGrammarNotFound, n)
		}
		keep[n] = true
	}
	for name, l := range r.languages {
		if keep[name] {
			continue
		}
		delete(r.languages, name)
		for _, ext := range l.Extensions {
			if r.byExtension[strings.ToLower(ext)] == l {
				delete(r.byExtension, strings.ToLower(ext))
			}
		}
	}
	return nil
}

// ForPath returns the language registered for the file's extension.
func (r *Registry) ForPath(path string) (*Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byExtension[ext]
	return l, ok
}

// Names returns the registered language names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.languages))
	for n := range r.languages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load returns the compiled grammar for name. The binding is validated by
// assigning it to a scratch parser, which rejects incompatible ABI versions.
func (r *Registry) Load(name string) (*sitter.Language, error) {
	r.mu.RLock()
	if l, ok := r.loaded[name]; ok {
		r.mu.RUnlock()
		return l, nil
	}
	if err, ok := r.failed[name]; ok {
		r.mu.RUnlock()
		return nil, err
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loaded[name]; ok {
		return l, nil
	}
	if err, ok := r.failed[name]; ok {
		return nil, err
	}

	l, err := r.loadLocked(name)
	if err != nil {
		r.failed[name] = err
		r.logger.Warn("grammar.load_failed", "language", name, "error", err)
		return nil, err
	}
	r.loaded[name] = l
	return l, nil
}

func (r *Registry) loadLocked(name string) (l *sitter.Language, err error) {
	info, ok := r.languages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGrammarNotFound, name)
	}
	if info.binding == nil {
		return nil, fmt.Errorf("%w: %s has no binding", ErrGrammarNotFound, name)
	}

	defer func() {
		if p := recover(); p != nil {
			l, err = nil, fmt.Errorf("%w: %s: %v", ErrIncompatibleABI, name, p)
		}
	}()

	ptr := info.binding()
	if ptr == nil {
		return nil, fmt.Errorf("%w: %s binding returned nil", ErrGrammarNotFound, name)
	}
	lang := sitter.NewLanguage(ptr)

	scratch := sitter.NewParser()
	defer scratch.Close()
	if err := scratch.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIncompatibleABI, name, err)
	}
	return lang, nil
}

// Failed returns the languages whose grammar could not be loaded.
func (r *Registry) Failed() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]error, len(r.failed))
	for k, v := range r.failed {
		out[k] = v
	}
	return out
}
