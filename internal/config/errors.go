package config

import (
	"errors"
	"fmt"
)

// ToolError is a user-facing failure: bad input, missing project files, or a
// refusal from the remote service. The CLI prints its message and exits
// without further diagnostics.
type ToolError struct {
	Err error
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Fail creates a ToolError. %w verbs keep the wrapped error reachable through errors.Is.
func Fail(format string, args ...any) error {
	return &ToolError{Err: fmt.Errorf(format, args...)}
}

// IsToolError reports whether err (or anything it wraps) is a ToolError.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}

var (
	// ErrManifestNotFound is returned when a command needs dappled.yml and there is none.
	ErrManifestNotFound = errors.New(`dappled.yml not found; please run "dappled init" first`)

	// ErrNoFilename is returned when the manifest does not name a notebook.
	ErrNoFilename = errors.New(`"filename" field not found in dappled.yml; please specify a notebook`)
)
