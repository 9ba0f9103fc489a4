package main

import (
	"errors"
	"fmt"
)

// Exit codes
const (
	exitFailure = 1
	exitUsage   = 2
)

// ExitError carries a process exit code out of a cobra RunE without calling os.Exit,
// so commands stay testable.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError wraps err with an exit code
func NewExitError(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// IsExitError extracts the exit code from err if it is, or wraps, an *ExitError
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
