package util

import (
	"os"
	"path/filepath"
)

// FindGitRoot walks up from start to the nearest directory holding a .git
// entry. When none is found start itself is returned. An empty start means
// the working directory.
func FindGitRoot(start string) (string, error) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		start = wd
	}
	start, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for dir := start; ; {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start, nil
		}
		dir = parent
	}
}

// ResolveRoot returns path made absolute, or the enclosing git root of the
// working directory when path is empty.
func ResolveRoot(path string) (string, error) {
	if path == "" {
		return FindGitRoot("")
	}
	return filepath.Abs(path)
}
