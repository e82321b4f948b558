package conda

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCreateEnvironment wraps a failed `conda create`.
	ErrCreateEnvironment = errors.New("failed to create environment")
	// ErrInstallMissing wraps a failed `conda install` of packages missing from an existing environment.
	ErrInstallMissing = errors.New("failed to install missing packages")
	// ErrInstallPip wraps a failed `pip install` of the companion pip packages.
	ErrInstallPip = errors.New("failed to install missing pip packages")
)

// CondaError is a package-manager run that exited with a non-zero status.
type CondaError struct {
	Args     []string
	ExitCode int
	// Output is the tail of the combined stdout and stderr.
	Output string
}

func (e *CondaError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Output != "" {
		msg += ":\n" + e.Output
	}
	return msg
}
