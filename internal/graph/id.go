package graph

import (
	"errors"
	"strings"
)

var (
	ErrEmptySymbol = errors.New("empty symbol name")
	ErrEmptyModule = errors.New("empty module path")
)

// ModulePath turns a repository relative file path into the dotted namespace
// used as component id prefix. The first matching extension in exts is
// stripped, ignoring case; both slash styles are treated as separators.
func ModulePath(relPath string, exts ...string) string {
	p := relPath
	lower := strings.ToLower(p)
	for _, ext := range exts {
		if ext != "" && strings.HasSuffix(lower, strings.ToLower(ext)) && len(p) > len(ext) {
			p = p[:len(p)-len(ext)]
			break
		}
	}
	p = strings.TrimPrefix(p, "./")
	return strings.NewReplacer("/", ".", "\\", ".").Replace(p)
}

// MakeComponentID builds module_path[.owner].symbol.
func MakeComponentID(modulePath, owner, symbol string) (string, error) {
	if symbol == "" {
		return "", ErrEmptySymbol
	}
	if modulePath == "" {
		return "", ErrEmptyModule
	}
	if owner != "" {
		return modulePath + "." + owner + "." + symbol, nil
	}
	return modulePath + "." + symbol, nil
}

// GuessCalleeID is the id assigned to a call target that was not found among
// the declarations of the calling file.
func GuessCalleeID(modulePath, callee string) string {
	return modulePath + "." + callee
}
