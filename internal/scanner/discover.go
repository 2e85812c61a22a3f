package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"codegraph/internal/analyzer"
)

// defaultExcludedDirs are never descended into.
var defaultExcludedDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	".codegraph":   {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
	".tox":         {},
	".next":        {},
	"dist":         {},
	"build":        {},
	".cache":       {},
	"target":       {},
	".idea":        {},
	".vscode":      {},
}

// IsExcludedDir reports whether a directory name is skipped by default.
func IsExcludedDir(name string) bool {
	_, ok := defaultExcludedDirs[name]
	return ok
}

type matcher struct {
	g glob.Glob
	// base patterns carry no separator and are matched against the file name
	// as well as the full relative path.
	base bool
}

func (m matcher) match(rel string) bool {
	if m.g.Match(rel) {
		return true
	}
	return m.base && m.g.Match(path.Base(rel))
}

func compileGlobs(patterns []string) ([]matcher, error) {
	out := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Join(fmt.Errorf("%w: %q", ErrInvalidPattern, p), err)
		}
		out = append(out, matcher{g: g, base: !strings.Contains(p, "/")})
	}
	return out, nil
}

func matchAny(ms []matcher, rel string) bool {
	for _, m := range ms {
		if m.match(rel) {
			return true
		}
	}
	return false
}

// Filter decides which paths of a repository take part in a scan.
type Filter struct {
	root      string
	include   []matcher
	exclude   []matcher
	gitignore *ignore.GitIgnore
	scanner   *Scanner
}

// NewFilter compiles the scanner's path policy for root.
func (s *Scanner) NewFilter(root string) (*Filter, error) {
	include, err := compileGlobs(s.include)
	if err != nil {
		return nil, err
	}
	exclude, err := compileGlobs(s.exclude)
	if err != nil {
		return nil, err
	}

	f := &Filter{root: root, include: include, exclude: exclude, scanner: s}
	if s.gitignore {
		gi := filepath.Join(root, ".gitignore")
		if _, err := os.Stat(gi); err == nil {
			f.gitignore, err = ignore.CompileIgnoreFile(gi)
			if err != nil {
				s.logger.Warn("scanner.gitignore_invalid", "path", gi, "error", err)
				f.gitignore = nil
			}
		}
	}
	return f, nil
}

func (f *Filter) rel(p string) (string, bool) {
	r, err := filepath.Rel(f.root, p)
	if err != nil || strings.HasPrefix(r, "..") {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// SkipDir reports whether the directory at p is left out entirely.
func (f *Filter) SkipDir(p string) bool {
	if IsExcludedDir(filepath.Base(p)) {
		return true
	}
	rel, ok := f.rel(p)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}
	if f.gitignore != nil && f.gitignore.MatchesPath(rel+"/") {
		return true
	}
	return matchAny(f.exclude, rel)
}

// Keep reports whether the file at p is analyzed: it must have a registered
// language, pass the include and exclude globs and not be gitignored.
func (f *Filter) Keep(p string) bool {
	if _, ok := f.scanner.registry.ForPath(p); !ok {
		return false
	}
	rel, ok := f.rel(p)
	if !ok {
		return false
	}
	if f.gitignore != nil && f.gitignore.MatchesPath(rel) {
		return false
	}
	if matchAny(f.exclude, rel) {
		return false
	}
	return len(f.include) == 0 || matchAny(f.include, rel)
}

// Discover walks root and reads every kept file. Unreadable files are
// returned as failures.
func (s *Scanner) Discover(ctx context.Context, root string) ([]File, []FileError, error) {
	filter, err := s.NewFilter(root)
	if err != nil {
		return nil, nil, err
	}

	files := []File{}
	var failures []FileError
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == root {
				return walkErr
			}
			failures = append(failures, FileError{Path: p, Err: walkErr})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != root && filter.SkipDir(p) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !filter.Keep(p) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			failures = append(failures, FileError{Path: p, Err: err})
			return nil
		}
		if info.Size() > s.maxFileSize {
			s.logger.Debug("scanner.file_skipped", "path", p, "reason", "too large", "size", info.Size())
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			failures = append(failures, FileError{Path: p, Err: err})
			return nil
		}
		files = append(files, analyzer.NewFile(p, root, content))
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	s.logger.Debug("scanner.discovered", "root", root, "files", len(files), "unreadable", len(failures))
	return files, failures, nil
}
