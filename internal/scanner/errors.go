package scanner

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRoot reports a repository root that does not exist, is not a
	// directory or cannot be read. It aborts the whole run.
	ErrInvalidRoot = errors.New("invalid repository root")

	// ErrInvalidFileList reports a missing file list.
	ErrInvalidFileList = errors.New("invalid file list")

	// ErrInvalidPattern indicates a glob pattern could not be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// FileError records one file that contributed no results. It never fails
// the run.
type FileError struct {
	Path     string
	Language string
	Err      error
}

func (e FileError) Error() string {
	if e.Language == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Path, e.Language, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}
