package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)

// RepositoryAccessError reports a source location that is missing, unreadable,
// not a repository, or a repository with no commits.
type RepositoryAccessError struct {
	Source string
	Err    error
}

func (e *RepositoryAccessError) Error() string {
	return fmt.Sprintf("repository %s is not accessible: %v", e.Source, e.Err)
}

func (e *RepositoryAccessError) Unwrap() error { return e.Err }

// CloneError reports a failed fetch of a remote repository.
type CloneError struct {
	URL string
	Err error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone of %s failed: %v", e.URL, e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort a build.
func IsFatal(err error) bool {
	var access *RepositoryAccessError
	var clone *CloneError
	return errors.As(err, &access) || errors.As(err, &clone)
}
