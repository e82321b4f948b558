package conda

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"

	"dappled/internal/logger"
	"dappled/internal/procio"
)

// outputTail is how many lines of output a CondaError keeps.
const outputTail = 20

// Invoker runs the external programs the adapter depends on.
type Invoker interface {
	// Conda runs the package manager with args, rendering its progress as it
	// goes, and returns every line it printed. env nil inherits the current environment.
	Conda(ctx context.Context, env []string, args ...string) ([]string, error)
	// CondaOutput runs the package manager with args and returns what it wrote
	// to standard output. Standard error is logged, not returned.
	CondaOutput(ctx context.Context, env []string, args ...string) ([]byte, error)
	// Output runs name with args and returns its combined output.
	Output(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// Subprocess is the Invoker backed by real child processes.
type Subprocess struct {
	// Python runs the package manager as `<Python> -u -m conda`, so output is
	// unbuffered and the conda that runs is the one importable by that interpreter.
	Python string
	// Out receives the rendered progress.
	Out io.Writer
}

// condaArgs builds the interpreter argument vector. --quiet is dropped from
// install and create because it hides the progress bars.
func (s *Subprocess) condaArgs(args []string) []string {
	if len(args) > 0 && (args[0] == "install" || args[0] == "create") {
		args = slices.DeleteFunc(slices.Clone(args), func(a string) bool {
			return a == "--quiet" || a == "-q"
		})
	}
	return append([]string{"-u", "-m", "conda"}, args...)
}

func (s *Subprocess) Conda(ctx context.Context, env []string, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, s.Python, s.condaArgs(args)...)
	cmd.Env = env
	logger.Debug("[DEBUG] Running: %s\n", strings.Join(cmd.Args, " "))

	stream, err := procio.Start(cmd)
	if err != nil {
		return nil, err
	}
	lines := procio.Watch(stream.Lines(), s.Out)
	if err := stream.Wait(); err != nil {
		return lines, exitError(cmd.Args, err, procio.Tail(lines, outputTail))
	}
	return lines, nil
}

func (s *Subprocess) CondaOutput(ctx context.Context, env []string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.Python, s.condaArgs(args)...)
	cmd.Env = env
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	logger.Debug("[DEBUG] Running: %s\n", strings.Join(cmd.Args, " "))

	out, err := cmd.Output()
	lines := slices.Collect(procio.Lines(&stderr))
	if err != nil {
		return out, exitError(cmd.Args, err, procio.Tail(lines, outputTail))
	}
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			logger.Warn("[WARN] conda %s: %s\n", args[0], line)
		}
	}
	return out, nil
}

func (s *Subprocess) Output(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	logger.Debug("[DEBUG] Running: %s\n", strings.Join(cmd.Args, " "))

	out, err := cmd.CombinedOutput()
	if err != nil {
		lines := slices.Collect(procio.Lines(strings.NewReader(string(out))))
		return out, exitError(cmd.Args, err, procio.Tail(lines, outputTail))
	}
	return out, nil
}

// exitError turns a non-zero exit into a CondaError and anything else (the
// program could not be started at all) into a plain wrapped error.
func exitError(args []string, err error, tail string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &CondaError{Args: args, ExitCode: exitErr.ExitCode(), Output: tail}
	}
	return fmt.Errorf("failed to run: %s: %w", strings.Join(args, " "), err)
}
