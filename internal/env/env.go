// Package env prepares a project's private environment and runs commands inside it.
package env

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"dappled/internal/conda"
	"dappled/internal/logger"
	"dappled/internal/procio"
)

// ErrPrepareFailed is returned when the project could not be prepared for reasons
// already reported to the user (see conda.Project.Problems).
var ErrPrepareFailed = errors.New("environment preparation failed")

// Preparer makes a project's declared environment exist.
type Preparer interface {
	Prepare(ctx context.Context, p *conda.Project) (bool, error)
}

// Provisioner places extra project files (repository snapshots, downloads) next to the notebook.
type Provisioner interface {
	Provision(ctx context.Context, p *conda.Project) error
}

// Engine prepares environments.
type Engine struct {
	Conda Preparer
	// Files is optional.
	Files Provisioner
	Out   io.Writer
}

// Env is a prepared environment: the variables and working directory commands run with.
// It lives for one invocation only.
type Env struct {
	Project *conda.Project
	Dir     string
	Vars    []string
	out     io.Writer
}

// Prepare loads the project in dir, fills in its environment and sets up the
// companion notebook extensions. It returns ErrPrepareFailed when the project
// is unusable; subprocess and package-manager failures are returned as is.
func (e *Engine) Prepare(ctx context.Context, dir string) (*Env, error) {
	p, err := conda.LoadProject(dir)
	if err != nil {
		return nil, err
	}

	if e.Files != nil {
		if err := e.Files.Provision(ctx, p); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(e.Out, "Preparing environment...")
	ok, err := e.Conda.Prepare(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Error("[ERROR] failed\n")
		return nil, ErrPrepareFailed
	}

	env := &Env{
		Project: p,
		Dir:     dir,
		Vars:    Environ(os.Environ(), p.Prefix(), dir, p.EnvSpec.Name),
		out:     e.Out,
	}
	env.setupExtensions(ctx)
	return env, nil
}

// setupExtensions installs and enables the dappled notebook extension and the
// dashboards extension. Every step is best effort.
func (e *Env) setupExtensions(ctx context.Context) {
	fmt.Fprintln(e.out, "Setting up jupyter extensions...")
	res, err := e.Run(ctx, []string{"python", "-c", "import dappled_core; print(dappled_core.__file__)"})
	if err == nil && res.ExitCode == 0 {
		core := filepath.Dir(strings.TrimSpace(res.Output))
		nbextension := filepath.Join(core, "static", "nbextension")
		e.Run(ctx, []string{"jupyter", "nbextension", "install", nbextension, "--sys-prefix", "--symlink"})
		e.Run(ctx, []string{"jupyter", "nbextension", "enable", "nbextension/nbextension", "--sys-prefix"})
	} else {
		logger.Debug("[DEBUG] dappled_core not importable, skipping nbextension: %v\n", err)
	}
	e.Run(ctx, []string{"jupyter", "dashboards", "quick-setup", "--sys-prefix", "--InstallNBExtensionApp.log_level=CRITICAL"})
}

// Result is a finished command.
type Result struct {
	Output   string
	ExitCode int
}

type runOptions struct {
	stream io.Writer
}

// RunOption configures Run.
type RunOption func(*runOptions)

// Stream prints each output line to w as it arrives.
func Stream(w io.Writer) RunOption {
	return func(o *runOptions) { o.stream = w }
}

// Run executes argv inside the environment and collects its combined output.
// A non-zero exit is reported in Result, not as an error; errors mean the
// command could not be started.
func (e *Env) Run(ctx context.Context, argv []string, opts ...RunOption) (Result, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	path, err := e.LookPath(argv[0])
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("failed to run: %s: %w", strings.Join(argv, " "), err)
	}
	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Args[0] = argv[0]
	cmd.Dir = e.Dir
	cmd.Env = e.Vars
	logger.Debug("[DEBUG] Running in %s: %s\n", e.Dir, strings.Join(argv, " "))

	stream, err := procio.Start(cmd)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	var out strings.Builder
	for line := range stream.Lines() {
		if o.stream != nil {
			fmt.Fprintln(o.stream, line)
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := stream.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{Output: out.String(), ExitCode: -1}, err
		}
	}
	return Result{Output: out.String(), ExitCode: stream.ExitCode()}, nil
}

// LookPath resolves file against the environment's PATH rather than the current process's.
func (e *Env) LookPath(file string) (string, error) {
	return lookPath(file, getenv(e.Vars, "PATH"))
}

// Exec replaces the current process with argv running inside the environment.
// It does not return on success: deferred functions do not run and buffered
// output not yet flushed is lost.
func (e *Env) Exec(argv []string) error {
	path, err := e.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("failed to run: %s: %w", strings.Join(argv, " "), err)
	}
	if err := os.Chdir(e.Dir); err != nil {
		return err
	}
	logger.Debug("[DEBUG] Handing off to %s\n", strings.Join(argv, " "))
	return execFunc(path, argv, e.Vars)
}

// Environ returns base with the environment at prefix activated: its binary
// directories lead PATH and the conda activation variables are set.
func Environ(base []string, prefix, projectDir, name string) []string {
	var bins []string
	if runtime.GOOS == "windows" {
		bins = []string{prefix, filepath.Join(prefix, "Scripts"), filepath.Join(prefix, "Library", "bin")}
	} else {
		bins = []string{filepath.Join(prefix, "bin")}
	}
	if old := getenv(base, "PATH"); old != "" {
		bins = append(bins, old)
	}

	vars := map[string]string{
		"PATH":              strings.Join(bins, string(os.PathListSeparator)),
		"CONDA_PREFIX":      prefix,
		"CONDA_DEFAULT_ENV": name,
		"PROJECT_DIR":       projectDir,
	}
	out := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, override := vars[envKey(k)]; override {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range []string{"PATH", "CONDA_PREFIX", "CONDA_DEFAULT_ENV", "PROJECT_DIR"} {
		out = append(out, k+"="+vars[k])
	}
	return out
}

func getenv(vars []string, key string) string {
	for i := len(vars) - 1; i >= 0; i-- {
		k, v, _ := strings.Cut(vars[i], "=")
		if envKey(k) == key {
			return v
		}
	}
	return ""
}

// envKey folds variable names on Windows, where Path and PATH are the same variable.
func envKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}

// lookPath searches the directories of pathList for an executable named file.
// Names containing a path separator are returned unchanged. Empty entries do
// not stand for the current directory.
func lookPath(file, pathList string) (string, error) {
	if strings.ContainsRune(file, filepath.Separator) || strings.ContainsRune(file, '/') {
		return file, nil
	}
	exts := []string{""}
	if runtime.GOOS == "windows" {
		exts = []string{".exe", ".bat", ".cmd", ""}
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			continue
		}
		for _, ext := range exts {
			candidate := filepath.Join(dir, file+ext)
			if isExecutable(candidate) {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("%q: %w", file, exec.ErrNotFound)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode().Perm()&0111 != 0
}
