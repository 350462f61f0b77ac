package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRepositoryAccessError_Unwrap(t *testing.T) {
	inner := errors.New("no commits")
	err := fmt.Errorf("build: %w", &RepositoryAccessError{Source: "/tmp/repo", Err: inner})
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match inner")
	}
	if !strings.Contains(err.Error(), "/tmp/repo") {
		t.Errorf("message should name the source: %q", err.Error())
	}
	if !IsFatal(err) {
		t.Error("access error should be fatal")
	}
}

func TestCloneError_Fatal(t *testing.T) {
	err := &CloneError{URL: "https://example.com/x.git", Err: errors.New("exit status 128")}
	if !IsFatal(err) {
		t.Error("clone error should be fatal")
	}
	if !strings.Contains(err.Error(), "https://example.com/x.git") {
		t.Errorf("message should name the url: %q", err.Error())
	}
}

func TestIsFatal_Sentinels(t *testing.T) {
	if IsFatal(ErrNotFound) || IsFatal(ErrUnavailable) {
		t.Error("sentinels must not be fatal")
	}
}
